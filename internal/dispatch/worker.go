package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskrelay/taskrelay/internal/backend"
	"github.com/taskrelay/taskrelay/internal/journal"
	"github.com/taskrelay/taskrelay/internal/log"
	"github.com/taskrelay/taskrelay/internal/router"
	"github.com/taskrelay/taskrelay/internal/store"
	"github.com/taskrelay/taskrelay/internal/task"
)

const resultExcerptLen = 1500

// runTask is the worker pipeline for one leased task: route, provision,
// transition to InProgress, invoke the backend with streamed progress, and
// finalize. The lease is held for the worker's full lifetime.
func (d *Dispatcher) runTask(ctx context.Context, t *task.Task, workerID string) {
	defer d.leases.Release(t.ID)
	logger := log.WithTask(t.ID)

	if wf, ok := t.Tags[task.TagWorkflow]; ok && !router.KnownWorkflow(wf) {
		logger.Warnf("unknown workflow %q, using default backend", wf)
	}
	decision := router.Route(t, d.cfg.DefaultModel, d.worktreeExists)

	b, err := d.backends.Get(decision.Backend)
	if err != nil {
		// Routed to a backend that is not wired (e.g. api without a key).
		logger.Warnf("%v, using default backend", err)
		if b, err = d.backends.Get(router.DefaultBackend); err != nil {
			logger.Errorf("no default backend registered: %v", err)
			return
		}
	}

	// Provisioning failure aborts before any status write; the task stays
	// NotStarted and a future tick retries.
	path, err := d.provisioner.Ensure(ctx, decision.Worktree, d.cfg.BaseRef)
	if err != nil {
		logger.Errorf("workspace provisioning failed: %v", err)
		return
	}

	runID := uuid.NewString()
	run := &journal.Run{
		ID:        runID,
		TaskID:    t.ID,
		Title:     t.Title,
		Backend:   decision.Backend,
		Model:     decision.Model,
		Worktree:  decision.Worktree,
		Status:    journal.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if d.journal != nil {
		if err := d.journal.CreateRun(run); err != nil {
			logger.Warnf("failed to journal run: %v", err)
		}
	}

	logger.Infof("dispatching: backend=%s model=%s worktree=%s run=%s",
		decision.Backend, decision.Model, decision.Worktree, runID)

	dispatchNote := fmt.Sprintf("🚀 Dispatched to %s (model %s) in worktree `%s`.",
		decision.Backend, decision.Model, decision.Worktree)
	if err := d.transition(ctx, t.ID, t.Status, store.StatusInProgress, dispatchNote); err != nil {
		logger.Errorf("failed to write in-progress transition: %v", err)
		d.finishRun(run, journal.RunStatusFailed, "", err.Error())
		return
	}

	pw := newProgressWriter(d.gw, d.streams, runID, t.ID)
	pw.start(ctx)

	result, invokeErr := b.Invoke(ctx, backend.Payload{
		RunID:         runID,
		TaskID:        t.ID,
		Title:         t.Title,
		Prompt:        t.Prompt(),
		Model:         decision.Model,
		WorkspacePath: path,
	}, pw.Write)

	pw.stop()

	// The reconciler may have claimed an expired lease and already marked
	// the task Failed. Finalize removes the lease iff this worker still
	// owns it, so exactly one side ever writes the terminal status.
	if !d.leases.Finalize(t.ID, workerID) {
		logger.Warn("lease lost during execution, discarding result")
		d.finishRun(run, journal.RunStatusFailed, "", "lease expired during execution")
		return
	}

	switch {
	case invokeErr != nil:
		logger.Errorf("backend invocation failed: %v", invokeErr)
		d.markFailed(ctx, t.ID, fmt.Sprintf("Backend %s failed: %v", decision.Backend, invokeErr))
		d.finishRun(run, journal.RunStatusFailed, "", invokeErr.Error())
		d.teardownOnFailure(ctx, t, decision)

	case result.Outcome == backend.OutcomeError:
		logger.Errorf("backend reported error: %s", result.ErrorDetail)
		d.markFailed(ctx, t.ID, fmt.Sprintf("Backend %s failed: %s", decision.Backend, result.ErrorDetail))
		d.finishRun(run, journal.RunStatusFailed, result.Output, result.ErrorDetail)
		d.teardownOnFailure(ctx, t, decision)

	case result.Outcome == backend.OutcomeNeedsHuman:
		logger.Info("backend requests human input")
		note := "🙋 Human input requested. Reply and add a `continue: <instructions>` block to resume."
		if err := d.transition(ctx, t.ID, store.StatusInProgress, store.StatusHilReview, note); err != nil {
			logger.Errorf("failed to write review transition: %v", err)
		}
		d.finishRun(run, journal.RunStatusNeedsHuman, result.Output, "")

	default:
		logger.Info("task completed")
		note := "✅ Completed." + resultExcerpt(result.Output)
		if err := d.transition(ctx, t.ID, store.StatusInProgress, store.StatusDone, note); err != nil {
			logger.Errorf("failed to write done transition: %v", err)
		}
		d.finishRun(run, journal.RunStatusDone, result.Output, "")
	}
}

// transition appends the accompanying content block and then writes the
// status, enforcing the state machine. Within a task these writes are
// strictly ordered because each worker owns its task exclusively.
func (d *Dispatcher) transition(ctx context.Context, taskID string, from, to store.Status, note string) error {
	if !task.ValidTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	if err := d.gw.AppendBlocks(ctx, taskID, []store.ContentBlock{store.TextBlock(note)}); err != nil {
		return fmt.Errorf("appending transition block: %w", err)
	}
	if err := d.gw.UpdateStatus(ctx, taskID, to); err != nil {
		return fmt.Errorf("updating status to %s: %w", to, err)
	}
	return nil
}

// finishRun finalizes the journal record, notifies the stream manager and
// webhooks.
func (d *Dispatcher) finishRun(run *journal.Run, status journal.RunStatus, output, errMsg string) {
	now := time.Now()
	run.Status = status
	run.EndedAt = &now
	run.Output = output
	run.Error = errMsg

	if d.journal != nil {
		if err := d.journal.UpdateRun(run); err != nil {
			log.WithTask(run.TaskID).Warnf("failed to finalize journal run: %v", err)
		}
	}
	if d.streams != nil {
		d.streams.Complete(run.ID, string(status), errMsg)
	}
	if d.notifier != nil {
		d.notifier.NotifyRun(run)
	}
}

// teardownOnFailure destroys generated worktrees after a failed run. A
// worktree the author named explicitly is left in place for inspection.
func (d *Dispatcher) teardownOnFailure(ctx context.Context, t *task.Task, decision router.Decision) {
	if _, named := t.Tags[task.TagWorktree]; named {
		return
	}
	if err := d.provisioner.Destroy(ctx, decision.Worktree); err != nil {
		log.WithTask(t.ID).Warnf("failed to tear down worktree %s: %v", decision.Worktree, err)
	}
}

func resultExcerpt(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) > resultExcerptLen {
		trimmed = trimmed[:resultExcerptLen] + "\n... (truncated)"
	}
	return "\n\n" + trimmed
}
