package executor

import (
	"context"
	"sync"
)

// Future is a handle to one task's in-flight or completed outcome. It
// completes exactly once; later Complete calls are ignored. Cancellation is
// best-effort: it cancels the task's context, and whether the work honors
// that is up to the executor running it.
type Future[O any] struct {
	cancel context.CancelFunc

	mu   sync.Mutex
	done chan struct{}
	out  []O
	err  error
}

// NewFuture returns an incomplete future. cancel may be nil when the backing
// executor has no way to interrupt the task.
func NewFuture[O any](cancel context.CancelFunc) *Future[O] {
	return &Future[O]{
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Complete resolves the future with either an output sequence or an error.
// The first call wins; subsequent calls are no-ops.
func (f *Future[O]) Complete(out []O, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	f.out = out
	f.err = err
	close(f.done)
}

// Cancel requests best-effort cancellation of the underlying task.
func (f *Future[O]) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Done reports whether the future has completed.
func (f *Future[O]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// C returns a channel closed when the future completes.
func (f *Future[O]) C() <-chan struct{} {
	return f.done
}

// Result returns the task's outcome without blocking. Before completion it
// returns ErrNotReady.
func (f *Future[O]) Result() ([]O, error) {
	if !f.Done() {
		return nil, ErrNotReady
	}
	// No lock needed: out and err are write-once before done is closed.
	return f.out, f.err
}
