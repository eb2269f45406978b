package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// PoolConfig controls the in-process pool executor.
type PoolConfig struct {
	Workers   int
	QueueSize int

	// SubmitRate throttles SubmitAll to this many tasks per second.
	// 0 disables throttling.
	SubmitRate float64
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 4, QueueSize: 64}
}

type poolTask[I, O any] struct {
	ctx    context.Context
	fn     Func[I, O]
	input  I
	future *Future[O]
}

// Pool runs work functions on a fixed set of worker goroutines. Each task
// gets its own cancellable context wired to its future, so Future.Cancel
// interrupts queued tasks before they start and cooperating work functions
// after. Worker panics are recovered and surfaced as task errors.
type Pool[I, O any] struct {
	logger  *slog.Logger
	queue   chan poolTask[I, O]
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool starts cfg.Workers workers and returns the pool. Close releases
// them.
func NewPool[I, O any](cfg PoolConfig, logger *slog.Logger) *Pool[I, O] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPoolConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPoolConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[I, O]{
		logger: logger.With("component", "pool"),
		queue:  make(chan poolTask[I, O], cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.SubmitRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), 1)
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(i)
	}
	p.logger.Debug("pool started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return p
}

// SubmitAll enqueues one future per task. It blocks only on queue capacity
// (and the optional rate limit), never on task completion. Tasks submitted
// to a closed pool complete immediately with ErrClosed.
func (p *Pool[I, O]) SubmitAll(ctx context.Context, fn Func[I, O], tasks []Task[I]) []Submission[O] {
	subs := make([]Submission[O], 0, len(tasks))
	for _, t := range tasks {
		if p.ctx.Err() != nil {
			fut := NewFuture[O](nil)
			fut.Complete(nil, ErrClosed)
			subs = append(subs, Submission[O]{Slots: t.Slots, Future: fut})
			continue
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				fut := NewFuture[O](nil)
				fut.Complete(nil, err)
				subs = append(subs, Submission[O]{Slots: t.Slots, Future: fut})
				continue
			}
		}

		taskCtx, taskCancel := context.WithCancel(ctx)
		fut := NewFuture[O](taskCancel)
		select {
		case p.queue <- poolTask[I, O]{ctx: taskCtx, fn: fn, input: t.Input, future: fut}:
		case <-p.ctx.Done():
			taskCancel()
			fut.Complete(nil, ErrClosed)
		}
		subs = append(subs, Submission[O]{Slots: t.Slots, Future: fut})
	}
	return subs
}

// Awaiter returns the pool's wait primitive.
func (p *Pool[I, O]) Awaiter() Awaiter[O] {
	return AwaitN[O]
}

// Close stops the workers and waits for them to exit. Queued tasks that
// never ran complete with the pool context's error.
func (p *Pool[I, O]) Close() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Debug("pool stopped")
	})
}

func (p *Pool[I, O]) worker(idx int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			// Drain what is already queued so no future is left dangling.
			for {
				select {
				case t := <-p.queue:
					t.future.Complete(nil, ErrClosed)
				default:
					return
				}
			}
		case t := <-p.queue:
			p.runTask(idx, t)
		}
	}
}

func (p *Pool[I, O]) runTask(idx int, t poolTask[I, O]) {
	// A task cancelled while queued never runs.
	if err := t.ctx.Err(); err != nil {
		t.future.Complete(nil, err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("worker recovered panic", "worker", idx, "panic", r)
			t.future.Complete(nil, fmt.Errorf("task panicked: %v", r))
		}
	}()

	out, err := t.fn(t.ctx, t.input)
	t.future.Complete(out, err)
}
