package job

import (
	"time"

	"github.com/me/genrun/pkg/executor"
)

// Policy is the collaborator that drives a generational run: it decides what
// work to produce next given the results accumulated so far, and how long
// the scheduler should wait for outstanding work between generations. The
// scheduler itself never produces tasks or thresholds.
//
// I is the task input type, O the result-slot element type.
type Policy[I, O any] interface {
	// NextTasks returns the next batch given the feedback (every result
	// slot filled so far, in slot order) and the count of tasks submitted
	// so far. An empty batch signals that there is no more work.
	NextTasks(feedback []O, offset int) []executor.Task[I]

	// WaitPolicy decides how many outstanding futures to wait for before
	// the next generation (count <= 0 means all) and the maximum time to
	// wait (timeout <= 0 means unbounded).
	WaitPolicy(feedback []O, offset int) (count int, timeout time.Duration)

	// Func returns the unit of work applied to each task input.
	Func() executor.Func[I, O]

	// Executor returns the backend tasks are submitted to.
	Executor() executor.Executor[I, O]
}
