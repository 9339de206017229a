package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/taskrelay/taskrelay/internal/log"
	"github.com/taskrelay/taskrelay/internal/store"
	"github.com/taskrelay/taskrelay/internal/stream"
)

const (
	progressFlushInterval = 10 * time.Second
	progressFlushBytes    = 2000
)

// progressWriter batches backend output into store appends while publishing
// each chunk to the stream manager immediately. A single flusher goroutine
// performs all appends, so blocks land in the order produced.
type progressWriter struct {
	gw      StoreGateway
	streams *stream.Manager
	runID   string
	taskID  string

	mu  sync.Mutex
	buf strings.Builder

	flushCh chan struct{}
	done    chan struct{}
}

func newProgressWriter(gw StoreGateway, streams *stream.Manager, runID, taskID string) *progressWriter {
	return &progressWriter{
		gw:      gw,
		streams: streams,
		runID:   runID,
		taskID:  taskID,
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// start launches the flusher. stop must be called exactly once afterwards.
func (w *progressWriter) start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(progressFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.flushCh:
				if !ok {
					w.flush(ctx)
					return
				}
				w.flush(ctx)
			case <-ticker.C:
				w.flush(ctx)
			}
		}
	}()
}

// Write receives one chunk from the backend. Safe for concurrent use.
func (w *progressWriter) Write(text string) {
	if w.streams != nil {
		w.streams.Publish(stream.ProgressEvent{
			RunID:     w.runID,
			TaskID:    w.taskID,
			Text:      text,
			Timestamp: time.Now(),
		})
	}

	w.mu.Lock()
	w.buf.WriteString(text)
	full := w.buf.Len() >= progressFlushBytes
	w.mu.Unlock()

	if full {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
}

// stop performs the final flush and waits for the flusher to exit.
func (w *progressWriter) stop() {
	close(w.flushCh)
	<-w.done
}

func (w *progressWriter) flush(ctx context.Context) {
	w.mu.Lock()
	text := w.buf.String()
	w.buf.Reset()
	w.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return
	}
	if err := w.gw.AppendBlocks(ctx, w.taskID, []store.ContentBlock{store.TextBlock(text)}); err != nil {
		// Progress appends are best effort; the final result block is what
		// matters for the state machine.
		log.WithTask(w.taskID).Warnf("progress append failed: %v", err)
	}
}
