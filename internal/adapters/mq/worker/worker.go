// Package worker drains the journal queue into a journal store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/okian/whodunit/internal/adapters/mq/queue"
	"github.com/okian/whodunit/internal/domain/dedupe"
	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/pkg/logger"
	"github.com/okian/whodunit/pkg/metrics"
)

const defaultWorkerCount = 2

// Writer persists one journal entry.
type Writer interface {
	Append(ctx context.Context, e model.JournalEntry) error
}

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Entry
}

// Worker processes journal entries.
type Worker interface {
	// Run processes entries until the queue is drained and closed or ctx is canceled.
	Run(ctx context.Context)
}

// InMemoryWorker writes entries from the queue, skipping ids it has already written.
type InMemoryWorker struct {
	queue   Queue
	deduper dedupe.Deduper
	writer  Writer
	name    string
	logger  logger.Logger

	done chan struct{}
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, d dedupe.Deduper, w Writer, opts ...Option) *InMemoryWorker {
	wk := &InMemoryWorker{
		queue:   q,
		deduper: d,
		writer:  w,
		name:    "worker",
		logger:  logger.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(wk)
	}
	wk.logger = wk.logger.Named(wk.name)
	return wk
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	entries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			if err := w.process(ctx, e); err != nil {
				w.logger.Error(ctx, "error writing journal entry", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, e queue.Entry) error { //nolint:gocritic // hugeParam: Entry comes off a channel by value
	if w.deduper.SeenAndRecord(ctx, e.ID) {
		metrics.RecordJournalDuplicate()
		w.logger.Debug(ctx, "duplicate journal entry skipped", logger.String("entry_id", e.ID))
		return nil
	}
	if err := w.writer.Append(ctx, e); err != nil {
		w.deduper.Unrecord(ctx, e.ID)
		metrics.RecordJournalWriteError()
		return fmt.Errorf("append entry %s of case %d: %w", e.ID, e.ActiveID, err)
	}
	metrics.RecordJournalWrite()
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
	started sync.Once
}

// NewPool creates a pool of workerCount workers sharing one deduper.
func NewPool(workerCount int, q Queue, d dedupe.Deduper, w Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.NewNop(),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, d, w, wopts...)
	}
	probe := &InMemoryWorker{logger: p.logger}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger.Named("worker-pool")
	metrics.UpdateJournalWorkers(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool. Calling it twice has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.started.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
	})
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	var errs []error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, fmt.Errorf("worker %d: %w", i, ctx.Err()))
		}
	}
	return errors.Join(errs...)
}
