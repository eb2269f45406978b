package job

// Recorder receives task-level outcomes and terminal transitions. Task
// failures are absorbed by the scheduler; the recorder is where they are
// kept. Implementations must be safe for concurrent use and must not block
// the caller for long — the worker invokes them from inside the loop.
type Recorder interface {
	// TaskCompleted reports a task whose outputs were scattered into slots.
	TaskCompleted(jobID string, task int, slots []int)

	// TaskFailed reports a task failure that was absorbed without halting
	// the run. Cancellation-induced failures are never reported.
	TaskFailed(jobID string, task int, err error)

	// JobFinished reports the job's terminal state.
	JobFinished(jobID string, state State)
}

type nopRecorder struct{}

func (nopRecorder) TaskCompleted(string, int, []int) {}
func (nopRecorder) TaskFailed(string, int, error) {}
func (nopRecorder) JobFinished(string, State) {}
