package task

import "github.com/taskrelay/taskrelay/internal/store"

// Eligibility classifies a task for the current poll tick.
type Eligibility int

const (
	// NotEligible tasks are skipped this tick.
	NotEligible Eligibility = iota
	// Eligible tasks may be leased and dispatched.
	Eligible
	// AwaitingHuman tasks sit in review with no continue trigger yet.
	AwaitingHuman
)

func (e Eligibility) String() string {
	switch e {
	case Eligible:
		return "eligible"
	case AwaitingHuman:
		return "awaiting_human"
	default:
		return "not_eligible"
	}
}

// LeaseChecker reports whether a local lease is currently held for a task.
type LeaseChecker interface {
	Held(taskID string) bool
}

// Classify is the eligibility filter: pure, re-run against fresh store state
// every tick. A task is Eligible iff its status is NotStarted or HilReview,
// a trigger is present and consistent with the status, and no local lease is
// held. HilReview accepts only a continue trigger; an execute trigger there
// must wait for the human.
func Classify(t *Task, leases LeaseChecker) Eligibility {
	switch t.Status {
	case store.StatusNotStarted:
		if t.Trigger == nil {
			return NotEligible
		}
	case store.StatusHilReview:
		if t.Trigger == nil {
			return AwaitingHuman
		}
		if t.Trigger.Kind != TriggerContinue {
			return NotEligible
		}
	default:
		return NotEligible
	}

	if leases != nil && leases.Held(t.ID) {
		return NotEligible
	}
	return Eligible
}
