package task

import (
	"github.com/taskrelay/taskrelay/internal/store"
)

// Recognized directive keys. Unrecognized keys survive parsing but are
// ignored by routing.
const (
	TagWorktree = "worktree"
	TagModel    = "model"
	TagWorkflow = "workflow"
	TagApp      = "app"
)

// TriggerKind discriminates the execution trigger found in a task's last
// content block.
type TriggerKind int

const (
	// TriggerExecute marks a task ready for a fresh run.
	TriggerExecute TriggerKind = iota
	// TriggerContinue resumes a task waiting on human input, carrying the
	// human's follow-up prompt.
	TriggerContinue
)

// Trigger is the parsed execution trigger. A nil *Trigger means the task is
// not ready to run.
type Trigger struct {
	Kind   TriggerKind
	Prompt string
}

// Task is a unit of work assembled from a store record and its content
// blocks. Tags and Trigger are derived from Blocks on every poll tick and
// never persisted.
type Task struct {
	ID      string
	Title   string
	Status  store.Status
	Blocks  []store.ContentBlock
	Tags    map[string]string
	Trigger *Trigger
}

// FromRecord builds a Task from a store record and freshly read content,
// re-deriving tags and the trigger.
func FromRecord(rec store.TaskRecord, blocks []store.ContentBlock) *Task {
	tags, trigger := Parse(blocks)
	return &Task{
		ID:      rec.ID,
		Title:   rec.Title,
		Status:  rec.Status,
		Blocks:  blocks,
		Tags:    tags,
		Trigger: trigger,
	}
}

// Prompt returns the text the backend is invoked with: the task body minus
// directive noise, or the continue prompt when resuming.
func (t *Task) Prompt() string {
	if t.Trigger != nil && t.Trigger.Kind == TriggerContinue && t.Trigger.Prompt != "" {
		return t.Trigger.Prompt
	}
	blocks := t.Blocks
	if t.Trigger != nil && len(blocks) > 0 {
		// The trigger block is a directive, not prompt content.
		blocks = blocks[:len(blocks)-1]
	}
	return BodyText(blocks)
}

// ValidTransition reports whether the engine may move a task from one status
// to another. Done and Failed are terminal; only an external edit reopens
// them.
func ValidTransition(from, to store.Status) bool {
	switch from {
	case store.StatusNotStarted:
		return to == store.StatusInProgress
	case store.StatusHilReview:
		return to == store.StatusInProgress
	case store.StatusInProgress:
		return to == store.StatusDone || to == store.StatusHilReview || to == store.StatusFailed
	default:
		return false
	}
}
