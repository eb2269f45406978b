// Package executor defines the execution boundary consumed by the job
// scheduler: work functions, tasks with declared destination slots, futures,
// and the awaiter used to wait for a subset of outstanding work. It also
// ships Pool, an in-process worker-pool executor usable as-is.
package executor

import (
	"context"
	"errors"
	"time"
)

// Func is the unit of work: it maps one input to an ordered sequence of
// output components. It may fail per task; such failures are isolated by the
// scheduler and never abort a run.
type Func[I, O any] func(ctx context.Context, input I) ([]O, error)

// Task is one unit of work to submit. Slots declares which result-buffer
// positions the task's output components fill, in the order the work
// function produces them.
type Task[I any] struct {
	Input I
	Slots []int
}

// Submission pairs a submitted task's destination slots with the future that
// will carry its outcome. SubmitAll returns one Submission per task, in
// submission order.
type Submission[O any] struct {
	Slots  []int
	Future *Future[O]
}

// Awaiter waits until count of the given futures are complete, or until
// timeout elapses, and returns the subset known complete. Futures that are
// already complete count immediately. count <= 0 means all futures;
// timeout <= 0 means no deadline beyond ctx.
type Awaiter[O any] func(ctx context.Context, futures []*Future[O], count int, timeout time.Duration) []*Future[O]

// Executor is a pluggable backend that runs work functions on task inputs.
type Executor[I, O any] interface {
	// SubmitAll submits one future per task and returns the destination
	// slot group and future for each, in task order. It must not block on
	// task completion.
	SubmitAll(ctx context.Context, fn Func[I, O], tasks []Task[I]) []Submission[O]

	// Awaiter returns the wait primitive used by the scheduler to block on
	// a subset of outstanding futures.
	Awaiter() Awaiter[O]
}

var (
	// ErrNotReady is returned by Future.Result before the future completes.
	ErrNotReady = errors.New("executor: future not ready")

	// ErrClosed is the failure recorded on futures submitted to a closed pool.
	ErrClosed = errors.New("executor: pool closed")
)
