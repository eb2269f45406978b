package job

import (
	"context"
	"sync"
)

// Waitable is the part of a job FirstCompleted needs. It is satisfied by
// every *Job regardless of type parameters; the unexported methods keep
// outside implementations from sneaking in.
type Waitable interface {
	// Done reports whether the job reached a terminal state.
	Done() bool

	addWaiter(w *completionWaiter) bool
	removeWaiter(w *completionWaiter)
}

// completionWaiter is shared by exactly the jobs of one FirstCompleted call:
// a one-shot trigger plus the accumulating list of jobs that turned terminal
// while it was registered.
type completionWaiter struct {
	trigger chan struct{}
	once    sync.Once

	mu       sync.Mutex
	finished []Waitable
}

func newCompletionWaiter() *completionWaiter {
	return &completionWaiter{trigger: make(chan struct{})}
}

func (w *completionWaiter) signal(jb Waitable) {
	w.mu.Lock()
	w.finished = append(w.finished, jb)
	w.mu.Unlock()
	w.once.Do(func() { close(w.trigger) })
}

func (w *completionWaiter) snapshot() []Waitable {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Waitable, len(w.finished))
	copy(out, w.finished)
	return out
}

// FirstCompleted blocks until at least one of the given jobs reaches a
// terminal state or ctx is done. Jobs already terminal at call time are
// returned immediately without waiting. Otherwise the returned list holds
// every job that turned terminal before the call unregistered — possibly
// more than one when several finish in the same window, possibly empty when
// ctx expires first.
//
// Each registration is a per-job critical section; no cross-job lock order
// exists, so concurrent calls over overlapping, differently-ordered job sets
// cannot deadlock. A job turning terminal between registrations simply lands
// in the waiter's finished list via its one-shot trigger.
func FirstCompleted(ctx context.Context, jobs ...Waitable) []Waitable {
	w := newCompletionWaiter()

	var done, installed []Waitable
	for _, jb := range jobs {
		if jb.addWaiter(w) {
			installed = append(installed, jb)
		} else {
			done = append(done, jb)
		}
	}
	if len(done) > 0 {
		for _, jb := range installed {
			jb.removeWaiter(w)
		}
		return done
	}

	select {
	case <-w.trigger:
	case <-ctx.Done():
	}

	for _, jb := range installed {
		jb.removeWaiter(w)
	}
	return w.snapshot()
}
