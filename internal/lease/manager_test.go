package lease

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	m := NewManager(2, time.Hour)

	assert.True(t, m.Acquire("t1", "w1"))
	assert.True(t, m.Held("t1"))
	assert.Equal(t, 1, m.Count())

	m.Release("t1")
	assert.False(t, m.Held("t1"))
	assert.Equal(t, 0, m.Count())
}

func TestAcquireHeldIDReturnsFalse(t *testing.T) {
	m := NewManager(5, time.Hour)

	require.True(t, m.Acquire("t1", "w1"))
	assert.False(t, m.Acquire("t1", "w2"))

	owner, held := m.Owner("t1")
	require.True(t, held)
	assert.Equal(t, "w1", owner)
}

func TestAcquireRespectsCapacity(t *testing.T) {
	m := NewManager(2, time.Hour)

	assert.True(t, m.Acquire("t1", "w1"))
	assert.True(t, m.Acquire("t2", "w2"))
	assert.False(t, m.Acquire("t3", "w3"))

	m.Release("t1")
	assert.True(t, m.Acquire("t3", "w3"))
}

func TestFinalizeRequiresOwnership(t *testing.T) {
	m := NewManager(5, time.Hour)
	require.True(t, m.Acquire("t1", "w1"))

	assert.False(t, m.Finalize("t1", "w2"))
	assert.True(t, m.Held("t1"))

	assert.True(t, m.Finalize("t1", "w1"))
	assert.False(t, m.Held("t1"))
}

func TestFinalizeOnlyOneWinner(t *testing.T) {
	// Two parties racing to finalize the same lease: exactly one wins.
	m := NewManager(5, time.Hour)
	require.True(t, m.Acquire("t1", "w1"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Finalize("t1", "w1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.False(t, m.Held("t1"))
}

func TestFinalizeMissingLease(t *testing.T) {
	m := NewManager(5, time.Hour)

	assert.False(t, m.Finalize("t1", "w1"))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager(1, time.Hour)

	m.Release("missing")
	require.True(t, m.Acquire("t1", "w1"))
	m.Release("t1")
	m.Release("t1")
	assert.Equal(t, 0, m.Count())
}

func TestConcurrentAcquireNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	m := NewManager(capacity, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if m.Acquire(fmt.Sprintf("t%d", i), "w") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, granted)
	assert.Equal(t, capacity, m.Count())
}

func TestExpired(t *testing.T) {
	m := NewManager(5, time.Hour)
	base := time.Now()
	m.now = func() time.Time { return base }

	require.True(t, m.Acquire("old", "w1"))

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.True(t, m.Acquire("fresh", "w2"))

	expired := m.Expired()
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].TaskID)
}

func TestSnapshot(t *testing.T) {
	m := NewManager(5, time.Hour)
	require.True(t, m.Acquire("t1", "w1"))
	require.True(t, m.Acquire("t2", "w2"))

	snap := m.Snapshot()
	assert.Len(t, snap, 2)
}
