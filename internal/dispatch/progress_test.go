package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskrelay/taskrelay/internal/store"
	"github.com/taskrelay/taskrelay/internal/stream"
)

func TestProgressWriterBatchesIntoSingleBlock(t *testing.T) {
	gw := newFakeGateway()
	gw.addTask("t1", "x", store.StatusInProgress)

	pw := newProgressWriter(gw, nil, "r1", "t1")
	pw.start(context.Background())

	pw.Write("chunk one ")
	pw.Write("chunk two ")
	pw.Write("chunk three")
	pw.stop()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.appended["t1"], 1)
	assert.Equal(t, "chunk one chunk two chunk three", gw.appended["t1"][0])
}

func TestProgressWriterFlushesWhenBufferFull(t *testing.T) {
	gw := newFakeGateway()
	gw.addTask("t1", "x", store.StatusInProgress)

	pw := newProgressWriter(gw, nil, "r1", "t1")
	pw.start(context.Background())

	pw.Write(strings.Repeat("a", progressFlushBytes+1))

	assert.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return len(gw.appended["t1"]) == 1
	}, 2*time.Second, 10*time.Millisecond, "expected a size-triggered flush before stop")

	pw.stop()
}

func TestProgressWriterSkipsEmptyFlush(t *testing.T) {
	gw := newFakeGateway()
	gw.addTask("t1", "x", store.StatusInProgress)

	pw := newProgressWriter(gw, nil, "r1", "t1")
	pw.start(context.Background())
	pw.stop()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Empty(t, gw.appended["t1"])
}

func TestProgressWriterPublishesToStreamImmediately(t *testing.T) {
	gw := newFakeGateway()
	gw.addTask("t1", "x", store.StatusInProgress)
	streams := stream.NewManager()
	sub := streams.Subscribe("r1", "s1")

	pw := newProgressWriter(gw, streams, "r1", "t1")
	pw.start(context.Background())
	defer pw.stop()

	pw.Write("live chunk")

	// The stream event arrives without waiting for a store flush.
	select {
	case ev := <-sub.Events:
		assert.Equal(t, "live chunk", ev.Text)
		assert.Equal(t, "t1", ev.TaskID)
	default:
		t.Fatal("expected an immediate stream event")
	}
}
