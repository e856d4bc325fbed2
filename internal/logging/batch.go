// Package logging provides the application's injectable log sink: a
// slog.Handler that batches records on an internal queue and flushes them to
// the wrapped handler on a timer or when the batch fills. It replaces
// process-wide output interception with a handler owned by the composition
// root.
package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBatchSize  = 64
	defaultFlushEvery = 2 * time.Second
)

type entry struct {
	h   slog.Handler
	rec slog.Record
}

// BatchHandler queues records and writes them to the wrapped handler in
// batches. Derived handlers (WithAttrs/WithGroup) share the root's queue.
type BatchHandler struct {
	inner slog.Handler

	q      chan entry
	stop   chan struct{}
	doneWG *sync.WaitGroup
}

// NewBatchHandler wraps inner and starts the flush loop. Call Close to flush
// the queue and stop the loop. batchSize and flushEvery fall back to defaults
// when <= 0.
func NewBatchHandler(inner slog.Handler, batchSize int, flushEvery time.Duration) *BatchHandler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	b := &BatchHandler{
		inner:  inner,
		q:      make(chan entry, batchSize*4),
		stop:   make(chan struct{}),
		doneWG: &sync.WaitGroup{},
	}
	b.doneWG.Add(1)
	go b.run(batchSize, flushEvery)
	return b
}

func (b *BatchHandler) run(batchSize int, flushEvery time.Duration) {
	defer b.doneWG.Done()

	buf := make([]entry, 0, batchSize)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	flush := func() {
		for _, e := range buf {
			_ = e.h.Handle(context.Background(), e.rec)
		}
		buf = buf[:0]
	}

	for {
		select {
		case e := <-b.q:
			buf = append(buf, e)
			if len(buf) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-b.stop:
			// Drain whatever is queued before exiting.
			for {
				select {
				case e := <-b.q:
					buf = append(buf, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes queued records and stops the flush loop. Only the root
// handler should be closed.
func (b *BatchHandler) Close() {
	close(b.stop)
	b.doneWG.Wait()
}

func (b *BatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return b.inner.Enabled(ctx, level)
}

func (b *BatchHandler) Handle(ctx context.Context, rec slog.Record) error {
	e := entry{h: b.inner, rec: rec.Clone()}
	select {
	case b.q <- e:
	default:
		// Queue full: deliver synchronously rather than dropping.
		return b.inner.Handle(ctx, rec)
	}
	return nil
}

func (b *BatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BatchHandler{inner: b.inner.WithAttrs(attrs), q: b.q, stop: b.stop, doneWG: b.doneWG}
}

func (b *BatchHandler) WithGroup(name string) slog.Handler {
	return &BatchHandler{inner: b.inner.WithGroup(name), q: b.q, stop: b.stop, doneWG: b.doneWG}
}
