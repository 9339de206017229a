package journal

import "time"

// RunStatus is the lifecycle state of one dispatch attempt.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusDone       RunStatus = "done"
	RunStatusNeedsHuman RunStatus = "needs_human"
	RunStatusFailed     RunStatus = "failed"
)

// Run records a single dispatch attempt of a task: the routing decision it
// ran under and how it ended. The store remains the source of truth for the
// task itself; the journal exists for local inspection and the API.
type Run struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	Title     string     `json:"title"`
	Backend   string     `json:"backend"`
	Model     string     `json:"model"`
	Worktree  string     `json:"worktree"`
	Status    RunStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Output    string     `json:"output"`
	Error     string     `json:"error,omitempty"`
}
