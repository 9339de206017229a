package stream

import (
	"sync"
	"time"
)

// ProgressEvent is a chunk of backend output for one run.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

// CompletionEvent signals that a run has reached a terminal outcome.
type CompletionEvent struct {
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"` // "done", "failed", or "needs_human"
	Error   string `json:"error,omitempty"`
}

// Subscriber receives progress for a single run.
type Subscriber struct {
	ID       string
	Events   chan ProgressEvent
	Complete chan CompletionEvent
	Done     chan struct{}
}

// runStream holds subscribers and a bounded replay buffer for one run.
type runStream struct {
	runID      string
	subs       map[string]*Subscriber
	buffer     []ProgressEvent
	completed  bool
	completion *CompletionEvent
	mu         sync.RWMutex
}

const bufferLimit = 200

// Manager fans backend progress out to subscribers: the dispatch worker that
// appends progress blocks to the store, and any observation API clients.
type Manager struct {
	streams map[string]*runStream
	mu      sync.RWMutex
}

// NewManager creates an empty stream manager.
func NewManager() *Manager {
	return &Manager{streams: make(map[string]*runStream)}
}

func (m *Manager) getOrCreate(runID string) *runStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[runID]; ok {
		return s
	}
	s := &runStream{
		runID:  runID,
		subs:   make(map[string]*Subscriber),
		buffer: make([]ProgressEvent, 0, bufferLimit),
	}
	m.streams[runID] = s
	return s
}

// Subscribe registers for a run's progress. Buffered events and a completion
// already recorded are replayed immediately.
func (m *Manager) Subscribe(runID, subID string) *Subscriber {
	s := m.getOrCreate(runID)

	sub := &Subscriber{
		ID:       subID,
		Events:   make(chan ProgressEvent, 256),
		Complete: make(chan CompletionEvent, 1),
		Done:     make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.buffer {
		select {
		case sub.Events <- ev:
		default:
		}
	}
	if s.completed && s.completion != nil {
		select {
		case sub.Complete <- *s.completion:
		default:
		}
	}
	s.subs[subID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its Done channel.
func (m *Manager) Unsubscribe(runID, subID string) {
	m.mu.RLock()
	s, ok := m.streams[runID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	if sub, ok := s.subs[subID]; ok {
		close(sub.Done)
		delete(s.subs, subID)
	}
	s.mu.Unlock()

	m.cleanup(runID)
}

// Publish delivers an event to all subscribers of its run, buffering it for
// late joiners. Slow subscribers drop events rather than block the backend.
func (m *Manager) Publish(ev ProgressEvent) {
	s := m.getOrCreate(ev.RunID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) >= bufferLimit {
		s.buffer = s.buffer[1:]
	}
	s.buffer = append(s.buffer, ev)

	for _, sub := range s.subs {
		select {
		case sub.Events <- ev:
		default:
		}
	}
}

// Complete records the run's terminal outcome and notifies subscribers.
func (m *Manager) Complete(runID, outcome, errMsg string) {
	m.mu.RLock()
	s, ok := m.streams[runID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	completion := CompletionEvent{RunID: runID, Outcome: outcome, Error: errMsg}

	s.mu.Lock()
	s.completed = true
	s.completion = &completion
	for _, sub := range s.subs {
		select {
		case sub.Complete <- completion:
		default:
		}
	}
	s.mu.Unlock()
}

// Active reports whether a run's stream exists and has not completed.
func (m *Manager) Active(runID string) bool {
	m.mu.RLock()
	s, ok := m.streams[runID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.completed
}

// Count returns the number of tracked run streams.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

func (m *Manager) cleanup(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[runID]
	if !ok {
		return
	}
	s.mu.RLock()
	empty := len(s.subs) == 0 && s.completed
	s.mu.RUnlock()
	if empty {
		delete(m.streams, runID)
	}
}

// Prune drops completed streams whose last activity predates maxAge.
func (m *Manager) Prune(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for runID, s := range m.streams {
		s.mu.RLock()
		var last time.Time
		if len(s.buffer) > 0 {
			last = s.buffer[len(s.buffer)-1].Timestamp
		}
		stale := len(s.subs) == 0 && s.completed && last.Before(cutoff)
		s.mu.RUnlock()
		if stale {
			delete(m.streams, runID)
		}
	}
}
