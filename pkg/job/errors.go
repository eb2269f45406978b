package job

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a job that is no longer
	// Pending. The failed call leaves the job's state unchanged.
	ErrAlreadyStarted = errors.New("job: already started")

	// ErrCancelled is returned by Result on a cancelled job. Partial
	// results are never exposed through Result.
	ErrCancelled = errors.New("job: cancelled")

	// ErrTimedOut is returned by Result when the context deadline expires
	// before the job reaches a terminal state. The caller may retry.
	ErrTimedOut = errors.New("job: result timed out")
)
