// Package background runs best-effort tasks that must not block or fail the
// job that spawned them, most notably result-cache population. Tasks queue
// on a bounded channel so a submission is never silently dropped without a
// log line, and Close drains whatever is still pending before shutdown.
package background

import (
	"context"
	"sync"
	"time"

	"docforge/internal/pkg/logger"
)

type task struct {
	name string
	fn   func(ctx context.Context)
}

type Runner struct {
	tasks   chan task
	log     *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner starts a runner draining up to buffer queued tasks with a
// per-task timeout.
func NewRunner(buffer int, taskTimeout time.Duration, log *logger.Logger) *Runner {
	if buffer <= 0 {
		buffer = 64
	}
	if taskTimeout <= 0 {
		taskTimeout = time.Minute
	}
	if log == nil {
		log = logger.NewDefault()
	}

	r := &Runner{
		tasks:   make(chan task, buffer),
		log:     log.WithComponent("background"),
		timeout: taskTimeout,
	}

	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for t := range r.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		t.fn(ctx)
		cancel()
	}
}

// Submit enqueues a task. It reports false, with a log line, when the
// runner is closed or the queue is full; the caller treats that the same
// as a failed best-effort task.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.log.Warn("background task rejected, runner closed", "task", name)
		return false
	}

	select {
	case r.tasks <- task{name: name, fn: fn}:
		return true
	default:
		r.log.Warn("background task dropped, queue full", "task", name)
		return false
	}
}

// Close stops accepting tasks and waits for the queue to drain, bounded by
// the context deadline.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
