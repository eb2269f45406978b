// Package job implements a generational task scheduler. A Job repeatedly
// asks a Policy for a batch of work, submits it to an executor, waits for a
// policy-chosen subset of all outstanding futures, scatters completed
// results into a position-indexed buffer, and feeds the filled slots back to
// the policy to decide the next batch, until the policy returns no work or
// the job is cancelled. FirstCompleted blocks a caller until the first of
// several jobs reaches a terminal state.
package job

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/me/genrun/pkg/executor"
)

// Options configures optional job collaborators.
type Options struct {
	// Logger receives the job's structured log output. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Recorder receives task outcomes and the terminal transition.
	// Defaults to a no-op.
	Recorder Recorder
}

// Job is one generational computation run. All exported methods are safe for
// concurrent use from arbitrary goroutines; the generational loop itself
// runs on a single dedicated goroutine started by Start.
type Job[I, O any] struct {
	id     string
	policy Policy[I, O]
	logger *slog.Logger
	rec    Recorder

	mu      sync.Mutex
	state   State
	offset  int
	slots   [][]int                  // destination slot group per task, parallel to futures
	futures []*executor.Future[O]
	handled []bool
	index   map[*executor.Future[O]]int
	results []O
	filled  []bool
	waiters []*completionWaiter

	done       chan struct{} // closed exactly once on the terminal transition
	workerDone chan struct{} // closed when the worker goroutine has fully exited
	runCtx     context.Context
	runCancel  context.CancelFunc
}

// New creates a Pending job driven by policy.
func New[I, O any](policy Policy[I, O]) *Job[I, O] {
	return NewWithOptions(policy, Options{})
}

// NewWithOptions creates a Pending job with explicit collaborators.
func NewWithOptions[I, O any](policy Policy[I, O], opts Options) *Job[I, O] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	id := uuid.NewString()
	return &Job[I, O]{
		id:         id,
		policy:     policy,
		logger:     logger.With("component", "job", "job_id", id),
		rec:        rec,
		index:      make(map[*executor.Future[O]]int),
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}
}

// ID returns the job's stable identity.
func (j *Job[I, O]) ID() string { return j.id }

// Start transitions the job from Pending to Running and launches the
// dedicated worker goroutine. Any later call fails with ErrAlreadyStarted
// and leaves the job untouched.
func (j *Job[I, O]) Start() error {
	j.mu.Lock()
	if j.state != Pending {
		j.mu.Unlock()
		return ErrAlreadyStarted
	}
	j.state = Running
	j.runCtx, j.runCancel = context.WithCancel(context.Background())
	j.mu.Unlock()

	j.logger.Debug("job started")
	go j.run()
	return nil
}

// Cancel moves a Running job to Cancelled, wakes Result callers, and issues
// best-effort cancellation to every future known so far. It returns true
// when the job was already terminal (nothing to do) and false otherwise.
//
// Cancelling a Pending job is a no-op: the job stays Pending forever and can
// never be joined or resolved. This mirrors the observed design; callers
// must Start before Cancel means anything.
func (j *Job[I, O]) Cancel() bool {
	j.mu.Lock()
	switch {
	case j.state.terminal():
		j.mu.Unlock()
		return true
	case j.state == Pending:
		j.mu.Unlock()
		return false
	}

	j.state = Cancelled
	close(j.done)
	futures := slices.Clone(j.futures)
	cancel := j.runCancel
	j.mu.Unlock()

	cancel()
	for _, f := range futures {
		f.Cancel()
	}
	j.logger.Info("job cancelled", "futures", len(futures))
	return false
}

// Cancelled reports whether the job reached the Cancelled state.
func (j *Job[I, O]) Cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == Cancelled
}

// Running reports whether the worker loop is still live.
func (j *Job[I, O]) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == Running
}

// Done reports whether the job reached either terminal state.
func (j *Job[I, O]) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state.terminal()
}

// Result blocks until the job is terminal or ctx is done. On Finished it
// returns the full results buffer: one entry per slot ever allocated, in
// submission order across generations; slots whose task failed hold O's
// zero value. On Cancelled it fails with ErrCancelled even if some slots
// were populated first. A deadline expiry maps to ErrTimedOut; any other
// context failure is returned as-is. An already-terminal job answers
// immediately regardless of ctx.
func (j *Job[I, O]) Result(ctx context.Context) ([]O, error) {
	if res, err, terminal := j.tryResult(); terminal {
		return res, err
	}

	select {
	case <-j.done:
	case <-ctx.Done():
	}

	// Re-check after waking: the terminal transition may have raced the
	// context.
	if res, err, terminal := j.tryResult(); terminal {
		return res, err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrTimedOut
	}
	return nil, ctx.Err()
}

func (j *Job[I, O]) tryResult() ([]O, error, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case Finished:
		return j.results, nil, true
	case Cancelled:
		return nil, ErrCancelled, true
	default:
		return nil, nil, false
	}
}

// Join blocks until the worker goroutine has fully exited. It is stronger
// than Result: a terminal state is observable slightly before the worker's
// final bookkeeping completes. Join on a never-started job blocks forever.
func (j *Job[I, O]) Join() {
	<-j.workerDone
}

// run is the generational loop. It holds the job lock only for the short
// bookkeeping sections, never while waiting on futures.
func (j *Job[I, O]) run() {
	defer close(j.workerDone)
	defer j.finish()

	fn := j.policy.Func()
	exec := j.policy.Executor()
	await := exec.Awaiter()

	var feedback []O
	tasks := j.policy.NextTasks(nil, 0)
	for j.Running() && len(tasks) > 0 {
		subs := exec.SubmitAll(j.runCtx, fn, tasks)

		j.mu.Lock()
		j.offset += len(tasks)
		for _, s := range subs {
			j.index[s.Future] = len(j.futures)
			j.slots = append(j.slots, s.Slots)
			j.futures = append(j.futures, s.Future)
			j.handled = append(j.handled, false)
			j.growResults(s.Slots)
		}
		futures := slices.Clone(j.futures)
		offset := j.offset
		j.mu.Unlock()

		j.logger.Debug("generation submitted", "batch", len(tasks), "offset", offset)

		count, timeout := j.policy.WaitPolicy(feedback, offset)
		for _, f := range await(j.runCtx, futures, count, timeout) {
			j.handleFuture(f)
		}

		feedback = j.feedback()
		if !j.Running() {
			break
		}
		tasks = j.policy.NextTasks(feedback, offset)
	}
}

// growResults extends the result buffer with empty placeholders covering
// every declared destination slot.
func (j *Job[I, O]) growResults(slots []int) {
	need := len(j.results) + len(slots)
	for _, s := range slots {
		if s+1 > need {
			need = s + 1
		}
	}
	for len(j.results) < need {
		var zero O
		j.results = append(j.results, zero)
		j.filled = append(j.filled, false)
	}
}

// handleFuture consumes one completed future at most once across the run.
// The cancellation check and the scatter happen under the same lock, so a
// future completing concurrently with an external Cancel never writes a
// result after the transition.
func (j *Job[I, O]) handleFuture(f *executor.Future[O]) {
	j.mu.Lock()
	defer j.mu.Unlock()

	i, ok := j.index[f]
	if !ok || j.handled[i] {
		return
	}
	j.handled[i] = true

	out, err := f.Result()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		j.logger.Warn("task failed", "task", i, "err", err)
		j.rec.TaskFailed(j.id, i, err)
		return
	}

	if j.state != Running {
		// Stale completion after cancellation: discard silently.
		return
	}
	for k, slot := range j.slots[i] {
		if k >= len(out) {
			j.logger.Warn("task returned fewer outputs than declared slots",
				"task", i, "declared", len(j.slots[i]), "got", len(out))
			break
		}
		j.results[slot] = out[k]
		j.filled[slot] = true
	}
	j.rec.TaskCompleted(j.id, i, j.slots[i])
}

// feedback snapshots every filled slot so far, in slot order. A slot is
// either fully written or absent; partially-written slots are impossible
// because the scatter runs under the lock.
func (j *Job[I, O]) feedback() []O {
	j.mu.Lock()
	defer j.mu.Unlock()
	fb := make([]O, 0, len(j.results))
	for i, ok := range j.filled {
		if ok {
			fb = append(fb, j.results[i])
		}
	}
	return fb
}

// finish performs the terminal transition (unless Cancel already did) and
// notifies Result callers and every registered cross-job waiter.
func (j *Job[I, O]) finish() {
	j.mu.Lock()
	if j.state == Running {
		j.state = Finished
		close(j.done)
	}
	state := j.state
	waiters := j.waiters
	j.waiters = nil
	j.mu.Unlock()

	for _, w := range waiters {
		w.signal(j)
	}
	j.rec.JobFinished(j.id, state)
	j.logger.Info("job done", "state", state.String())
}

// addWaiter registers w unless the job is already terminal. Reported
// registrations are removed by removeWaiter or consumed by finish.
func (j *Job[I, O]) addWaiter(w *completionWaiter) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.terminal() {
		return false
	}
	j.waiters = append(j.waiters, w)
	return true
}

func (j *Job[I, O]) removeWaiter(w *completionWaiter) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, cur := range j.waiters {
		if cur == w {
			j.waiters = append(j.waiters[:i], j.waiters[i+1:]...)
			return
		}
	}
}
