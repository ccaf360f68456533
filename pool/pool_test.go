package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/errors"
)

func TestRunAllExecutesEveryTask(t *testing.T) {
	p := New(2, nil)

	var count atomic.Int32
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = Task{
			Name: "count",
			Run: func(ctx context.Context) error {
				count.Add(1)
				return nil
			},
		}
	}

	errs := p.RunAll(context.Background(), tasks)
	require.Len(t, errs, 5)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(5), count.Load())
}

func TestRunAllBoundsConcurrency(t *testing.T) {
	p := New(2, nil)

	var active, peak atomic.Int32
	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = Task{
			Name: "bounded",
			Run: func(ctx context.Context) error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil
			},
		}
	}

	p.RunAll(context.Background(), tasks)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunAllIsolatesFailures(t *testing.T) {
	p := New(4, nil)

	boom := errors.New("boom")
	errs := p.RunAll(context.Background(), []Task{
		{Name: "ok", Run: func(ctx context.Context) error { return nil }},
		{Name: "fail", Run: func(ctx context.Context) error { return boom }},
		{Name: "ok2", Run: func(ctx context.Context) error { return nil }},
	})

	assert.NoError(t, errs[0])
	assert.True(t, errors.Is(errs[1], boom))
	assert.NoError(t, errs[2])
}

func TestRunAllTimeout(t *testing.T) {
	p := New(1, nil)

	errs := p.RunAll(context.Background(), []Task{
		{
			Name:    "slow",
			Timeout: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
					return nil
				}
			},
		},
	})

	require.Error(t, errs[0])
	assert.True(t, errors.Is(errs[0], errors.ErrStrategyTimeout))
}

func TestRunAllRecoversPanics(t *testing.T) {
	p := New(1, nil)

	errs := p.RunAll(context.Background(), []Task{
		{Name: "panicky", Run: func(ctx context.Context) error { panic("nope") }},
	})

	require.Error(t, errs[0])
	assert.Contains(t, errs[0].Error(), "panicked")
}

func TestRunAllCancelledContext(t *testing.T) {
	p := New(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := p.RunAll(ctx, []Task{
		{Name: "never", Run: func(ctx context.Context) error { return nil }},
	})
	require.Error(t, errs[0])
}

func TestNewClampsSize(t *testing.T) {
	assert.Equal(t, 1, New(0, nil).Size())
	assert.Equal(t, 1, New(-3, nil).Size())
	assert.Equal(t, 8, New(8, nil).Size())
}
