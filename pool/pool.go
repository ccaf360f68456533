// Package pool provides a small bounded worker pool for fan-out work:
// independent search strategies per query and per-claim embedding fills.
// Pools are constructed explicitly and injected; there are no package-level
// singletons.
package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/personakb/persona/errors"
)

// Task is one unit of work. A zero Timeout means the task inherits the
// caller's context deadline unchanged.
type Task struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Pool bounds how many tasks run concurrently.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	logger *zap.SugaredLogger
}

// New creates a pool with the given concurrency bound. Size values below 1
// are clamped to 1.
func New(size int, logger *zap.SugaredLogger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger,
	}
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

// RunAll executes all tasks, at most Size at a time, and returns one error
// slot per task in input order. A task that times out or fails fills its
// slot; it never aborts the others. RunAll itself only returns an error if
// ctx is cancelled before all tasks were scheduled.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []error {
	results := make([]error, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a slot: mark this and all
			// remaining tasks as cancelled
			for j := i; j < len(tasks); j++ {
				results[j] = errors.Wrapf(err, "task %s not scheduled", tasks[j].Name)
			}
			break
		}

		wg.Add(1)
		go func(idx int, t Task) {
			defer wg.Done()
			defer p.sem.Release(1)
			results[idx] = p.runOne(ctx, t)
		}(i, task)
	}

	wg.Wait()
	return results
}

// runOne executes a single task with its timeout, converting panics and
// deadline errors into task errors.
func (p *Pool) runOne(ctx context.Context, t Task) (err error) {
	taskCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("task %s panicked: %v", t.Name, r)
			if p.logger != nil {
				p.logger.Errorw("Task panicked", "task", t.Name, "panic", r)
			}
		}
	}()

	start := time.Now()
	err = t.Run(taskCtx)

	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = errors.Wrapf(errors.ErrStrategyTimeout, "task %s after %s", t.Name, time.Since(start).Round(time.Millisecond))
	}

	if p.logger != nil {
		p.logger.Debugw("Task finished",
			"task", t.Name,
			"duration", time.Since(start),
			"error", err,
		)
	}
	return err
}
