package lease

import (
	"sync"
	"time"
)

// Lease is a process-local exclusive claim on a task. Leases are never
// persisted; a restart voids them all and store state is reconciled instead.
type Lease struct {
	TaskID     string
	WorkerID   string
	AcquiredAt time.Time
}

// Manager grants at most one lease per task id and bounds the total number
// of concurrently held leases. Safe for concurrent use by the poll loop and
// dispatch workers.
type Manager struct {
	mu       sync.Mutex
	leases   map[string]Lease
	capacity int
	expiry   time.Duration

	now func() time.Time
}

// NewManager creates a manager holding at most capacity leases, each with
// the given soft expiry.
func NewManager(capacity int, expiry time.Duration) *Manager {
	return &Manager{
		leases:   make(map[string]Lease),
		capacity: capacity,
		expiry:   expiry,
		now:      time.Now,
	}
}

// Acquire grants a lease iff none is held for taskID and capacity allows.
// A false return means skip this tick, not an error.
func (m *Manager) Acquire(taskID, workerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.leases[taskID]; held {
		return false
	}
	if len(m.leases) >= m.capacity {
		return false
	}
	m.leases[taskID] = Lease{
		TaskID:     taskID,
		WorkerID:   workerID,
		AcquiredAt: m.now(),
	}
	return true
}

// Release removes the lease for taskID if present. Idempotent.
func (m *Manager) Release(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, taskID)
}

// Held reports whether a lease is currently held for taskID.
func (m *Manager) Held(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.leases[taskID]
	return held
}

// Owner returns the worker id holding taskID's lease, if any.
func (m *Manager) Owner(taskID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, held := m.leases[taskID]
	return l.WorkerID, held
}

// Finalize removes the lease for taskID iff workerID still owns it. A true
// return grants the caller the exclusive right to write the task's terminal
// status; exactly one of the racing worker and reconciler wins.
func (m *Manager) Finalize(taskID, workerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, held := m.leases[taskID]
	if !held || l.WorkerID != workerID {
		return false
	}
	delete(m.leases, taskID)
	return true
}

// Count returns the number of held leases.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// Snapshot returns a copy of all held leases, for the observation API.
func (m *Manager) Snapshot() []Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Lease, 0, len(m.leases))
	for _, l := range m.leases {
		out = append(out, l)
	}
	return out
}

// Expired returns leases held longer than the soft expiry. The caller
// reconciles each against store state before force-releasing.
func (m *Manager) Expired() []Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.expiry)
	var out []Lease
	for _, l := range m.leases {
		if l.AcquiredAt.Before(cutoff) {
			out = append(out, l)
		}
	}
	return out
}
