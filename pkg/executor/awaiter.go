package executor

import (
	"context"
	"time"
)

// AwaitN blocks until count of the given futures are complete, the timeout
// elapses, or ctx is done, and returns every future known complete at that
// point. It never blocks on a future's result, only on its completion
// signal, and it holds no locks while waiting.
func AwaitN[O any](ctx context.Context, futures []*Future[O], count int, timeout time.Duration) []*Future[O] {
	if count <= 0 || count > len(futures) {
		count = len(futures)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if done := completed(futures); len(done) >= count {
		return done
	}

	// One signal goroutine per pending future. The wake channel is sized so
	// every goroutine can send without blocking; stop tears them down when
	// the wait returns early.
	wake := make(chan struct{}, len(futures))
	stop := make(chan struct{})
	defer close(stop)
	for _, f := range futures {
		if f.Done() {
			continue
		}
		go func(f *Future[O]) {
			select {
			case <-f.C():
				wake <- struct{}{}
			case <-stop:
			}
		}(f)
	}

	for {
		select {
		case <-wake:
			if done := completed(futures); len(done) >= count {
				return done
			}
		case <-ctx.Done():
			return completed(futures)
		}
	}
}

func completed[O any](futures []*Future[O]) []*Future[O] {
	var done []*Future[O]
	for _, f := range futures {
		if f.Done() {
			done = append(done, f)
		}
	}
	return done
}
