package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/me/genrun/internal/logging"
	"github.com/me/genrun/pkg/executor"
)

// testPolicy emits batch tasks per generation, one destination slot per
// task, until limit tasks have been submitted. Slot ids equal task indexes,
// so results land in submission order.
type testPolicy struct {
	limit   int
	batch   int
	fn      executor.Func[int, int]
	exec    executor.Executor[int, int]
	count   int
	timeout time.Duration
}

func (p *testPolicy) NextTasks(_ []int, offset int) []executor.Task[int] {
	if offset >= p.limit {
		return nil
	}
	n := p.batch
	if n <= 0 {
		n = 1
	}
	if offset+n > p.limit {
		n = p.limit - offset
	}
	tasks := make([]executor.Task[int], n)
	for i := range tasks {
		tasks[i] = executor.Task[int]{Input: offset + i, Slots: []int{offset + i}}
	}
	return tasks
}

func (p *testPolicy) WaitPolicy(_ []int, _ int) (int, time.Duration) {
	return p.count, p.timeout
}

func (p *testPolicy) Func() executor.Func[int, int]         { return p.fn }
func (p *testPolicy) Executor() executor.Executor[int, int] { return p.exec }

func newTestPool(t *testing.T) *executor.Pool[int, int] {
	t.Helper()
	pool := executor.NewPool[int, int](executor.DefaultPoolConfig(), logging.Discard())
	t.Cleanup(pool.Close)
	return pool
}

// memRecorder captures recorder calls for assertions.
type memRecorder struct {
	mu        sync.Mutex
	completed []int
	failed    []int
	finished  []State
}

func (r *memRecorder) TaskCompleted(_ string, task int, _ []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, task)
}

func (r *memRecorder) TaskFailed(_ string, task int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, task)
}

func (r *memRecorder) JobFinished(_ string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, state)
}

func TestEndToEnd_OneTaskPerGeneration(t *testing.T) {
	pool := newTestPool(t)
	p := &testPolicy{
		limit: 3,
		batch: 1,
		fn: func(_ context.Context, input int) ([]int, error) {
			return []int{input * 10}, nil
		},
		exec: pool,
	}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if j.Done() || j.Running() {
		t.Fatal("new job should be pending")
	}
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.Join()

	if !j.Done() || j.Cancelled() {
		t.Fatalf("job should be finished, cancelled=%v", j.Cancelled())
	}
	res, err := j.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	want := []int{0, 10, 20}
	if len(res) != len(want) {
		t.Fatalf("len(res) = %d, want %d", len(res), len(want))
	}
	for i, v := range want {
		if res[i] != v {
			t.Errorf("res[%d] = %d, want %d", i, res[i], v)
		}
	}
}

func TestStart_SecondCallFails(t *testing.T) {
	pool := newTestPool(t)
	gate := make(chan struct{})
	p := &testPolicy{
		limit: 1,
		fn: func(ctx context.Context, input int) ([]int, error) {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return []int{input}, nil
		},
		exec: pool,
	}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if err := j.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := j.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if !j.Running() {
		t.Error("failed Start must not change state")
	}

	close(gate)
	j.Join()
	if err := j.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("Start on finished job = %v, want ErrAlreadyStarted", err)
	}
}

func TestResult_SubmissionOrderBeatsCompletionOrder(t *testing.T) {
	pool := newTestPool(t)
	// Earlier tasks sleep longer, so completion order is the reverse of
	// submission order.
	p := &testPolicy{
		limit: 4,
		batch: 4,
		fn: func(_ context.Context, input int) ([]int, error) {
			time.Sleep(time.Duration(3-input) * 20 * time.Millisecond)
			return []int{input * 10}, nil
		},
		exec: pool,
	}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := j.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	for i := 0; i < 4; i++ {
		if res[i] != i*10 {
			t.Errorf("res[%d] = %d, want %d", i, res[i], i*10)
		}
	}
}

func TestCancel_RunningJob(t *testing.T) {
	pool := newTestPool(t)
	started := make(chan struct{})
	var once sync.Once
	p := &testPolicy{
		limit: 1,
		fn: func(ctx context.Context, input int) ([]int, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
		exec: pool,
	}

	rec := &memRecorder{}
	j := NewWithOptions(p, Options{Logger: logging.Discard(), Recorder: rec})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	if already := j.Cancel(); already {
		t.Error("Cancel on running job should report work done, got already-terminal")
	}
	if _, err := j.Result(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Result after cancel = %v, want ErrCancelled", err)
	}
	j.Join()

	if !j.Cancelled() || !j.Done() {
		t.Error("job should be cancelled and done")
	}
	if already := j.Cancel(); !already {
		t.Error("Cancel on terminal job should report already terminal")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.failed) != 0 {
		t.Errorf("cancellation-induced failures must not be recorded, got %v", rec.failed)
	}
	if len(rec.finished) != 1 || rec.finished[0] != Cancelled {
		t.Errorf("finished states = %v, want [cancelled]", rec.finished)
	}
}

func TestCancel_PendingJobIsNoOp(t *testing.T) {
	pool := newTestPool(t)
	p := &testPolicy{limit: 1, fn: func(_ context.Context, input int) ([]int, error) {
		return []int{input}, nil
	}, exec: pool}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if already := j.Cancel(); already {
		t.Error("Cancel on pending job should not report already terminal")
	}
	// The job stays Pending forever: no terminal state, no wakeups.
	if j.Done() || j.Running() || j.Cancelled() {
		t.Error("pending job must stay pending after Cancel")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := j.Result(ctx); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Result on never-started job = %v, want ErrTimedOut", err)
	}
}

func TestTaskFailure_DoesNotHaltTheRun(t *testing.T) {
	pool := newTestPool(t)
	p := &testPolicy{
		limit: 3,
		batch: 1,
		fn: func(_ context.Context, input int) ([]int, error) {
			if input == 1 {
				return nil, fmt.Errorf("boom on %d", input)
			}
			return []int{input + 100}, nil
		},
		exec: pool,
	}

	rec := &memRecorder{}
	j := NewWithOptions(p, Options{Logger: logging.Discard(), Recorder: rec})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := j.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}

	if len(res) != 3 {
		t.Fatalf("len(res) = %d, want 3 (failed task still owns its slot)", len(res))
	}
	if res[0] != 100 || res[2] != 102 {
		t.Errorf("res = %v, want [100 0 102]", res)
	}
	if res[1] != 0 {
		t.Errorf("failed task's slot should stay empty, got %d", res[1])
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.failed) != 1 || rec.failed[0] != 1 {
		t.Errorf("failed tasks = %v, want [1]", rec.failed)
	}
	if len(rec.completed) != 2 {
		t.Errorf("completed tasks = %v, want two entries", rec.completed)
	}
}

func TestResult_TimesOut(t *testing.T) {
	pool := newTestPool(t)
	gate := make(chan struct{})
	p := &testPolicy{
		limit: 1,
		fn: func(ctx context.Context, input int) ([]int, error) {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return []int{input}, nil
		},
		exec: pool,
	}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := j.Result(ctx); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Result = %v, want ErrTimedOut", err)
	}

	close(gate)
	j.Join()
}

func TestResult_ImmediateCheckOnFinishedJob(t *testing.T) {
	pool := newTestPool(t)
	p := &testPolicy{limit: 1, fn: func(_ context.Context, input int) ([]int, error) {
		return []int{input + 1}, nil
	}, exec: pool}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.Join()

	// Even a dead context must not produce a spurious timeout on a job
	// that is already terminal.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := j.Result(ctx)
	if err != nil {
		t.Fatalf("Result with cancelled ctx on finished job = %v, want success", err)
	}
	if len(res) != 1 || res[0] != 1 {
		t.Errorf("res = %v, want [1]", res)
	}
}

func TestMultiSlotTask_ScatterOrder(t *testing.T) {
	pool := newTestPool(t)
	// One task fills two slots in declared order; a second fills one.
	p := &multiSlotPolicy{exec: pool}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := j.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	want := []int{10, 20, 30}
	if len(res) != len(want) {
		t.Fatalf("len(res) = %d, want %d", len(res), len(want))
	}
	for i, v := range want {
		if res[i] != v {
			t.Errorf("res[%d] = %d, want %d", i, res[i], v)
		}
	}
}

// multiSlotPolicy submits a two-slot task and a one-slot task in a single
// generation, then stops.
type multiSlotPolicy struct {
	exec executor.Executor[int, int]
}

func (p *multiSlotPolicy) NextTasks(_ []int, offset int) []executor.Task[int] {
	if offset > 0 {
		return nil
	}
	return []executor.Task[int]{
		{Input: 0, Slots: []int{0, 1}},
		{Input: 1, Slots: []int{2}},
	}
}

func (p *multiSlotPolicy) WaitPolicy(_ []int, _ int) (int, time.Duration) { return 0, 0 }

func (p *multiSlotPolicy) Func() executor.Func[int, int] {
	return func(_ context.Context, input int) ([]int, error) {
		if input == 0 {
			return []int{10, 20}, nil
		}
		return []int{30}, nil
	}
}

func (p *multiSlotPolicy) Executor() executor.Executor[int, int] { return p.exec }

func TestFeedback_SeesAllFilledSlots(t *testing.T) {
	pool := newTestPool(t)
	var mu sync.Mutex
	var seen [][]int

	p := &feedbackPolicy{exec: pool, record: func(fb []int) {
		mu.Lock()
		defer mu.Unlock()
		cp := make([]int, len(fb))
		copy(cp, fb)
		seen = append(seen, cp)
	}}

	j := NewWithOptions(p, Options{Logger: logging.Discard()})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.Join()

	mu.Lock()
	defer mu.Unlock()
	// First call sees no feedback, later calls see every slot filled so far.
	if len(seen) < 3 {
		t.Fatalf("expected at least 3 NextTasks calls, got %d", len(seen))
	}
	if len(seen[0]) != 0 {
		t.Errorf("first feedback = %v, want empty", seen[0])
	}
	last := seen[len(seen)-1]
	if len(last) != 2 || last[0] != 0 || last[1] != 10 {
		t.Errorf("final feedback = %v, want [0 10]", last)
	}
}

// feedbackPolicy runs two single-slot generations and records the feedback
// passed to each NextTasks call.
type feedbackPolicy struct {
	exec   executor.Executor[int, int]
	record func([]int)
}

func (p *feedbackPolicy) NextTasks(feedback []int, offset int) []executor.Task[int] {
	p.record(feedback)
	if offset >= 2 {
		return nil
	}
	return []executor.Task[int]{{Input: offset, Slots: []int{offset}}}
}

func (p *feedbackPolicy) WaitPolicy(_ []int, _ int) (int, time.Duration) { return 0, 0 }

func (p *feedbackPolicy) Func() executor.Func[int, int] {
	return func(_ context.Context, input int) ([]int, error) {
		return []int{input * 10}, nil
	}
}

func (p *feedbackPolicy) Executor() executor.Executor[int, int] { return p.exec }
