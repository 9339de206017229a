package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/taskrelay/taskrelay/internal/backend"
	"github.com/taskrelay/taskrelay/internal/config"
	"github.com/taskrelay/taskrelay/internal/journal"
	"github.com/taskrelay/taskrelay/internal/lease"
	"github.com/taskrelay/taskrelay/internal/log"
	"github.com/taskrelay/taskrelay/internal/store"
	"github.com/taskrelay/taskrelay/internal/stream"
	"github.com/taskrelay/taskrelay/internal/task"
	"github.com/taskrelay/taskrelay/internal/webhook"
	"github.com/taskrelay/taskrelay/internal/workspace"
)

// StoreGateway is the slice of the document store the dispatcher consumes.
// *store.Gateway satisfies it; tests substitute fakes.
type StoreGateway interface {
	QueryTasks(ctx context.Context, statusFilter []store.Status, limit int) ([]store.TaskRecord, error)
	ReadContent(ctx context.Context, taskID string) ([]store.ContentBlock, error)
	AppendBlocks(ctx context.Context, taskID string, blocks []store.ContentBlock) error
	UpdateStatus(ctx context.Context, taskID string, status store.Status) error
}

// Dispatcher owns the poll loop: each tick it queries the store, filters
// candidates, leases the eligible ones, and hands each off to a worker
// goroutine. Ticks perform only short store reads; workers run out of band.
type Dispatcher struct {
	cfg         *config.Config
	gw          StoreGateway
	leases      *lease.Manager
	provisioner workspace.Provisioner
	backends    *backend.Registry
	journal     *journal.Journal
	streams     *stream.Manager
	notifier    *webhook.Notifier

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New wires a dispatcher from its collaborators. journal, streams, and
// notifier may be nil (disabled).
func New(cfg *config.Config, gw StoreGateway, leases *lease.Manager, prov workspace.Provisioner,
	backends *backend.Registry, jnl *journal.Journal, streams *stream.Manager, notifier *webhook.Notifier) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:         cfg,
		gw:          gw,
		leases:      leases,
		provisioner: prov,
		backends:    backends,
		journal:     jnl,
		streams:     streams,
		notifier:    notifier,
		cron:        cron.New(cron.WithSeconds()),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins ticking. Idempotent.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	if d.journal != nil {
		if n, err := d.journal.MarkStaleRunsAsFailed(); err != nil {
			log.GetLogger().Warnf("failed to mark stale runs: %v", err)
		} else if n > 0 {
			log.GetLogger().Infof("marked %d stale runs as failed", n)
		}
	}

	spec := fmt.Sprintf("@every %ds", d.cfg.PollIntervalSeconds)
	if _, err := d.cron.AddFunc(spec, func() { d.Tick(d.ctx) }); err != nil {
		return fmt.Errorf("failed to schedule poll tick: %w", err)
	}
	d.cron.Start()
	d.running = true
	log.GetLogger().Infof("dispatcher started, polling every %ds with %d worker slots",
		d.cfg.PollIntervalSeconds, d.cfg.MaxConcurrentTasks)
	return nil
}

// Stop halts ticking and waits up to drainTimeout for in-flight workers.
func (d *Dispatcher) Stop(drainTimeout time.Duration) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	stopCtx := d.cron.Stop()
	<-stopCtx.Done()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		log.GetLogger().Warn("drain timeout reached, abandoning in-flight workers")
	}
	d.cancel()
}

// streamRetention bounds how long a completed run's stream buffer survives
// with no subscribers.
const streamRetention = time.Hour

// Tick is one poll cycle: reconcile expired leases, query candidates,
// filter, lease, and hand off. A failing task never aborts the tick.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.reconcile(ctx)
	if d.streams != nil {
		d.streams.Prune(streamRetention)
	}

	records, err := d.gw.QueryTasks(ctx, []store.Status{store.StatusNotStarted, store.StatusHilReview}, d.cfg.PageSize)
	if err != nil {
		log.GetLogger().Errorf("task query failed: %v", err)
		return
	}

	for _, rec := range records {
		blocks, err := d.gw.ReadContent(ctx, rec.ID)
		if err != nil {
			if store.IsTransient(err) || ctx.Err() != nil {
				// Retries are exhausted for this tick; the next one re-reads.
				log.WithTask(rec.ID).Errorf("content read failed: %v", err)
				continue
			}
			log.WithTask(rec.ID).Errorf("content read failed permanently: %v", err)
			d.markFailed(ctx, rec.ID, fmt.Sprintf("Could not read task content: %v", err))
			continue
		}

		t := task.FromRecord(rec, blocks)
		elig := task.Classify(t, d.leases)
		if elig != task.Eligible {
			log.WithTask(t.ID).Debugf("skipping: %s", elig)
			continue
		}

		workerID := uuid.NewString()
		if !d.leases.Acquire(t.ID, workerID) {
			// Held elsewhere or at capacity; the next tick retries.
			log.WithTask(t.ID).Debug("lease not granted, skipping this tick")
			continue
		}

		d.wg.Add(1)
		go func(t *task.Task, workerID string) {
			defer d.wg.Done()
			d.runTask(d.ctx, t, workerID)
		}(t, workerID)
	}
}

// reconcile handles lease expiry and orphaned tasks: a store-side InProgress
// task whose lease expired locally, or one with no local lease at all whose
// last edit predates the expiry window, is marked Failed with a timeout
// diagnostic.
func (d *Dispatcher) reconcile(ctx context.Context) {
	expired := make(map[string]lease.Lease)
	for _, l := range d.leases.Expired() {
		expired[l.TaskID] = l
	}

	inProgress, err := d.gw.QueryTasks(ctx, []store.Status{store.StatusInProgress}, d.cfg.PageSize)
	if err != nil {
		log.GetLogger().Errorf("reconcile query failed: %v", err)
		return
	}

	cutoff := time.Now().Add(-d.cfg.LeaseExpiry())
	for _, rec := range inProgress {
		if l, ok := expired[rec.ID]; ok {
			// Claim the lease out from under the worker before writing. A
			// worker that finalized first owns the terminal status; skip.
			if d.leases.Finalize(rec.ID, l.WorkerID) {
				log.WithTask(rec.ID).Warn("lease expired, reconciling as failed")
				d.markFailed(ctx, rec.ID, fmt.Sprintf("Task timed out: no completion within the %s lease window.", d.cfg.LeaseExpiry()))
			}
			continue
		}
		if !d.leases.Held(rec.ID) && rec.LastEditedAt.Before(cutoff) {
			// Orphan from a previous process; leases are never persisted.
			log.WithTask(rec.ID).Warn("orphaned in-progress task, reconciling as failed")
			d.markFailed(ctx, rec.ID, "Task orphaned: the dispatching process exited and no progress was recorded within the lease window.")
		}
	}
}

// markFailed appends a human-readable diagnostic block and writes the Failed
// status, best effort. The diagnostic goes first so the failure is
// inspectable even if the status write is lost.
func (d *Dispatcher) markFailed(ctx context.Context, taskID, diagnostic string) {
	if err := d.gw.AppendBlocks(ctx, taskID, []store.ContentBlock{store.TextBlock("❌ " + diagnostic)}); err != nil {
		log.WithTask(taskID).Errorf("failed to append failure diagnostic: %v", err)
	}
	if err := d.gw.UpdateStatus(ctx, taskID, store.StatusFailed); err != nil {
		log.WithTask(taskID).Errorf("failed to write failed status: %v", err)
	}
}

// worktreeExists is the collision predicate handed to the router.
func (d *Dispatcher) worktreeExists(name string) bool {
	_, err := os.Stat(filepath.Join(d.cfg.WorkspaceRoot, name))
	return err == nil
}
