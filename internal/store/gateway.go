package store

import (
	"context"
	"time"

	"github.com/taskrelay/taskrelay/internal/log"
)

const (
	defaultMaxAttempts = 4
	defaultInitBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 8 * time.Second
)

// Gateway wraps a Client with bounded exponential backoff on transient
// failures. Permanent errors are returned on the first attempt.
type Gateway struct {
	client      Client
	maxAttempts int
	initBackoff time.Duration
	maxBackoff  time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway wraps client with the default retry policy.
func NewGateway(client Client) *Gateway {
	return &Gateway{
		client:      client,
		maxAttempts: defaultMaxAttempts,
		initBackoff: defaultInitBackoff,
		maxBackoff:  defaultMaxBackoff,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs op up to maxAttempts times, doubling the backoff between
// transient failures.
func (g *Gateway) retry(ctx context.Context, name string, op func() error) error {
	backoff := g.initBackoff
	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == g.maxAttempts {
			return err
		}
		log.GetLogger().WithField("attempt", attempt).Warnf("%s failed, retrying in %s: %v", name, backoff, err)
		if serr := g.sleep(ctx, backoff); serr != nil {
			return serr
		}
		backoff *= 2
		if backoff > g.maxBackoff {
			backoff = g.maxBackoff
		}
	}
	return err
}

// QueryTasks lists tasks matching the status filter.
func (g *Gateway) QueryTasks(ctx context.Context, statusFilter []Status, limit int) ([]TaskRecord, error) {
	var tasks []TaskRecord
	err := g.retry(ctx, "queryTasks", func() error {
		var opErr error
		tasks, opErr = g.client.QueryTasks(ctx, statusFilter, limit)
		return opErr
	})
	return tasks, err
}

// ReadContent fetches a task's content blocks.
func (g *Gateway) ReadContent(ctx context.Context, taskID string) ([]ContentBlock, error) {
	var blocks []ContentBlock
	err := g.retry(ctx, "readContent", func() error {
		var opErr error
		blocks, opErr = g.client.ReadContent(ctx, taskID)
		return opErr
	})
	return blocks, err
}

// AppendBlocks appends blocks to a task. Appends are at-least-once: a retry
// after a lost response may duplicate a block, which readers tolerate.
func (g *Gateway) AppendBlocks(ctx context.Context, taskID string, blocks []ContentBlock) error {
	return g.retry(ctx, "appendBlocks", func() error {
		return g.client.AppendBlocks(ctx, taskID, blocks)
	})
}

// UpdateStatus sets a task's status.
func (g *Gateway) UpdateStatus(ctx context.Context, taskID string, status Status) error {
	return g.retry(ctx, "updateStatus", func() error {
		return g.client.UpdateStatus(ctx, taskID, status)
	})
}
