package vecstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Future is the completion handle for work scheduled on a Runner. It
// resolves exactly once, with either a value or an error.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done returns a channel that is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Resolved reports whether the result is already available.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the result is available or ctx is canceled. A canceled
// ctx abandons the wait, not the scheduled work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// DefaultRunnerSize is the worker count of the shared default Runner.
const DefaultRunnerSize = 16

// Runner executes blocking backend calls for the *Async store methods on a
// bounded worker pool. Submissions beyond the pool size queue up instead of
// spawning unbounded goroutines.
type Runner struct {
	pool *ants.Pool
}

// NewRunner creates a Runner with the given pool size. Sizes below one are
// clamped to one.
func NewRunner(size int) (*Runner, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Runner{pool: pool}, nil
}

// Release stops the runner's workers. Outstanding submissions fail with the
// pool's closed error.
func (r *Runner) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// Running returns the number of tasks currently executing.
func (r *Runner) Running() int {
	if r.pool == nil {
		return 0
	}
	return r.pool.Running()
}

// Cap returns the worker pool capacity.
func (r *Runner) Cap() int {
	if r.pool == nil {
		return 0
	}
	return r.pool.Cap()
}

var (
	defaultRunnerOnce sync.Once
	defaultRunner     *Runner
)

// DefaultRunner returns the shared process-wide Runner, creating it on first
// use. Stores fall back to it when no Runner is configured.
func DefaultRunner() *Runner {
	defaultRunnerOnce.Do(func() {
		r, err := NewRunner(DefaultRunnerSize)
		if err != nil {
			// Pool creation cannot fail with a clamped size; run tasks on
			// plain goroutines if it somehow does.
			r = &Runner{}
		}
		defaultRunner = r
	})
	return defaultRunner
}

// RunOn schedules fn on the runner and returns its Future. A nil runner uses
// the default. Submission failures and task panics resolve the Future with
// an error rather than losing it.
func RunOn[T any](r *Runner, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	if r == nil {
		r = DefaultRunner()
	}

	f := newFuture[T]()

	task := func() {
		defer func() {
			if rec := recover(); rec != nil {
				var zero T
				f.complete(zero, fmt.Errorf("async task panic: %v", rec))
			}
		}()
		val, err := fn(ctx)
		f.complete(val, err)
	}

	if r.pool == nil {
		go task()
		return f
	}

	if err := r.pool.Submit(task); err != nil {
		var zero T
		f.complete(zero, err)
	}

	return f
}
