package stream

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(runID, text string) ProgressEvent {
	return ProgressEvent{RunID: runID, TaskID: "t1", Text: text, Timestamp: time.Now()}
}

func TestPublishReachesSubscriber(t *testing.T) {
	m := NewManager()
	sub := m.Subscribe("r1", "s1")

	m.Publish(event("r1", "chunk one"))

	select {
	case ev := <-sub.Events:
		assert.Equal(t, "chunk one", ev.Text)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestLateSubscriberGetsReplay(t *testing.T) {
	m := NewManager()
	m.Publish(event("r1", "a"))
	m.Publish(event("r1", "b"))

	sub := m.Subscribe("r1", "late")

	require.Len(t, sub.Events, 2)
	assert.Equal(t, "a", (<-sub.Events).Text)
	assert.Equal(t, "b", (<-sub.Events).Text)
}

func TestReplayBufferIsBounded(t *testing.T) {
	m := NewManager()
	for i := 0; i < bufferLimit+50; i++ {
		m.Publish(event("r1", fmt.Sprintf("chunk %d", i)))
	}

	sub := m.Subscribe("r1", "late")
	assert.Len(t, sub.Events, bufferLimit)
	// Oldest events were evicted.
	assert.Equal(t, "chunk 50", (<-sub.Events).Text)
}

func TestCompleteNotifiesAndReplays(t *testing.T) {
	m := NewManager()
	sub := m.Subscribe("r1", "s1")

	m.Publish(event("r1", "work"))
	m.Complete("r1", "done", "")

	select {
	case c := <-sub.Complete:
		assert.Equal(t, "done", c.Outcome)
	default:
		t.Fatal("expected a completion event")
	}

	// A subscriber joining after completion still sees it.
	late := m.Subscribe("r1", "late")
	select {
	case c := <-late.Complete:
		assert.Equal(t, "done", c.Outcome)
	default:
		t.Fatal("expected completion replay")
	}
	assert.False(t, m.Active("r1"))
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	m := NewManager()
	sub := m.Subscribe("r1", "slow")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(sub.Events)+100; i++ {
			m.Publish(event("r1", "x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesDone(t *testing.T) {
	m := NewManager()
	sub := m.Subscribe("r1", "s1")

	m.Unsubscribe("r1", "s1")

	select {
	case <-sub.Done:
	default:
		t.Fatal("expected Done to be closed")
	}
}

func TestCompletedStreamIsCleanedUpAfterLastUnsubscribe(t *testing.T) {
	m := NewManager()
	m.Subscribe("r1", "s1")
	m.Complete("r1", "done", "")

	m.Unsubscribe("r1", "s1")

	m.mu.RLock()
	_, exists := m.streams["r1"]
	m.mu.RUnlock()
	assert.False(t, exists)
}

func TestPruneDropsStaleCompletedStreams(t *testing.T) {
	m := NewManager()
	old := ProgressEvent{RunID: "r1", Text: "x", Timestamp: time.Now().Add(-time.Hour)}
	m.Publish(old)
	m.Complete("r1", "done", "")

	m.Publish(event("r2", "fresh"))

	m.Prune(10 * time.Minute)

	m.mu.RLock()
	_, hasOld := m.streams["r1"]
	_, hasFresh := m.streams["r2"]
	m.mu.RUnlock()
	assert.False(t, hasOld)
	assert.True(t, hasFresh)
}
