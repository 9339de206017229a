package backend

import "context"

// Outcome is the terminal result kind of a backend invocation.
type Outcome int

const (
	// OutcomeSuccess means the work completed.
	OutcomeSuccess Outcome = iota
	// OutcomeNeedsHuman means the backend is requesting human input; the
	// task parks in review until a continue trigger arrives.
	OutcomeNeedsHuman
	// OutcomeError means the invocation failed.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNeedsHuman:
		return "needs_human"
	default:
		return "error"
	}
}

// Payload carries everything a backend needs for one invocation.
type Payload struct {
	RunID         string
	TaskID        string
	Title         string
	Prompt        string
	Model         string
	WorkspacePath string
}

// ProgressFunc receives intermediate output chunks in the order produced.
type ProgressFunc func(text string)

// Result is the terminal outcome of an invocation. ErrorDetail is set when
// Outcome is OutcomeError.
type Result struct {
	Outcome     Outcome
	Output      string
	ErrorDetail string
}

// Backend executes a task payload as an opaque long-running job, streaming
// progress through the callback and returning a single terminal result. A
// non-nil error means the invocation itself could not run (spawn failure,
// missing credentials); it is treated the same as an OutcomeError result.
type Backend interface {
	Name() string
	Invoke(ctx context.Context, p Payload, progress ProgressFunc) (*Result, error)
}

// needsHumanMarker is the line prefix a CLI backend emits when it wants
// human input before continuing.
const needsHumanMarker = "NEEDS_HUMAN:"
