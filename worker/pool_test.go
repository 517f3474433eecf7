package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/backoff"
	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/ext"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/middleware"
	"github.com/conveyordev/conveyor/queue/memory"
	"github.com/conveyordev/conveyor/retry"
	"github.com/conveyordev/conveyor/task"
	"github.com/conveyordev/conveyor/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestPool(t *testing.T, concurrency int, pollInterval time.Duration, poolOpts ...worker.PoolOption) (
	*worker.Pool, *memory.Queue, *task.Registry,
) {
	t.Helper()
	logger := discardLogger()
	q := memory.New(memory.WithPollInterval(10 * time.Millisecond))
	if err := q.Connect(context.Background()); err != nil {
		t.Fatalf("connect error: %v", err)
	}
	t.Cleanup(func() { _ = q.Disconnect(context.Background()) })

	reg := task.NewRegistry()
	extensions := ext.NewRegistry(logger)
	breakers := breaker.NewRegistry(breaker.DefaultConfig())

	retryCfg := retry.Config{
		MaxAttempts: 1,
		Backoff:     backoff.NewConstant(time.Millisecond),
	}

	executor := worker.NewExecutor(
		reg, extensions, breakers, q, retryCfg, logger,
		middleware.Recover(logger),
	)

	opts := append([]worker.PoolOption{
		worker.WithPoolConcurrency(concurrency),
		worker.WithPollInterval(pollInterval),
		worker.WithPoolQueues([]string{"default"}),
	}, poolOpts...)
	pool := worker.NewPool(q, executor, extensions, logger, opts...)

	return pool, q, reg
}

func newTestTask(handlerID string, input []byte) *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:        id.NewTaskID(),
		HandlerID: handlerID,
		Input:     input,
		Timestamp: now,
	}
}

func TestPool_StartStop(t *testing.T) {
	pool, _, _ := setupTestPool(t, 2, 50*time.Millisecond)

	err := pool.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// Double start should be no-op.
	err = pool.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = pool.Stop(ctx)
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Double stop should be no-op.
	err = pool.Stop(ctx)
	if err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_ProcessesTask(t *testing.T) {
	pool, q, reg := setupTestPool(t, 1, 10*time.Millisecond)

	var processed atomic.Bool
	reg.RegisterFunc("greet", func(_ *task.Context, input []byte) (*task.Output, error) {
		if string(input) != `{"name":"Alice"}` {
			t.Errorf("input = %q, want %q", input, `{"name":"Alice"}`)
		}
		processed.Store(true)
		return &task.Output{Status: task.StatusSuccess, Output: []byte(`"hello Alice"`)}, nil
	})

	results := make(chan *task.Result, 1)
	if err := q.SubscribeToResults("greet", func(res *task.Result) {
		results <- res
	}); err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	tk := newTestTask("greet", []byte(`{"name":"Alice"}`))
	if err := q.PublishTask(context.Background(), "default", tk); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for task to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	select {
	case res := <-results:
		if res.TaskID != tk.ID {
			t.Errorf("result task id = %s, want %s", res.TaskID, tk.ID)
		}
		if res.Status != task.StatusSuccess {
			t.Errorf("result status = %q, want %q", res.Status, task.StatusSuccess)
		}
		if string(res.Output) != `"hello Alice"` {
			t.Errorf("result output = %q", res.Output)
		}
		if res.Metrics == nil || res.Metrics.Attempts != 1 {
			t.Errorf("result metrics = %+v, want 1 attempt", res.Metrics)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result delivery")
	}
}

func TestPool_FailedTask(t *testing.T) {
	pool, q, reg := setupTestPool(t, 1, 10*time.Millisecond)

	reg.RegisterFunc("flaky", func(_ *task.Context, _ []byte) (*task.Output, error) {
		return nil, conveyor.NewPermanentError("validation", errors.New("bad input"))
	})

	results := make(chan *task.Result, 1)
	if err := q.SubscribeToResults("flaky", func(res *task.Result) {
		results <- res
	}); err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := q.PublishTask(context.Background(), "default", newTestTask("flaky", nil)); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	}()

	select {
	case res := <-results:
		if res.Status != task.StatusError {
			t.Errorf("result status = %q, want %q", res.Status, task.StatusError)
		}
		if res.Error == "" {
			t.Error("expected result error to be set")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failure result")
	}
}

func TestPool_GracefulShutdown(t *testing.T) {
	pool, _, _ := setupTestPool(t, 4, 50*time.Millisecond)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	// Allow workers to start polling.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := pool.Stop(ctx)
	if err != nil {
		t.Fatalf("graceful shutdown failed: %v", err)
	}
}

func TestPool_ExtensionFires(t *testing.T) {
	logger := discardLogger()
	q := memory.New()
	if err := q.Connect(context.Background()); err != nil {
		t.Fatalf("connect error: %v", err)
	}
	t.Cleanup(func() { _ = q.Disconnect(context.Background()) })

	reg := task.NewRegistry()
	extensions := ext.NewRegistry(logger)
	breakers := breaker.NewRegistry(breaker.DefaultConfig())

	tracker := &trackingExt{}
	extensions.Register(tracker)

	retryCfg := retry.Config{MaxAttempts: 1, Backoff: backoff.NewConstant(time.Millisecond)}
	executor := worker.NewExecutor(reg, extensions, breakers, q, retryCfg, logger)
	pool := worker.NewPool(q, executor, extensions, logger,
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
	)

	var processed atomic.Bool
	reg.RegisterFunc("tracked", func(_ *task.Context, _ []byte) (*task.Output, error) {
		processed.Store(true)
		return &task.Output{Status: task.StatusSuccess}, nil
	})

	if err := q.PublishTask(context.Background(), "default", newTestTask("tracked", nil)); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for task")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	if !tracker.started.Load() {
		t.Error("expected OnTaskStarted to fire")
	}
	if !tracker.completed.Load() {
		t.Error("expected OnTaskCompleted to fire")
	}
	if tracker.failed.Load() {
		t.Error("OnTaskFailed fired for a successful task")
	}
}

func TestPool_QueueManagerReenqueues(t *testing.T) {
	mgr := &stubManager{allowAfter: 2}
	pool, q, reg := setupTestPool(t, 1, 10*time.Millisecond, worker.WithQueueManager(mgr))

	var processed atomic.Bool
	reg.RegisterFunc("limited", func(_ *task.Context, _ []byte) (*task.Output, error) {
		processed.Store(true)
		return &task.Output{Status: task.StatusSuccess}, nil
	})

	if err := q.PublishTask(context.Background(), "default", newTestTask("limited", nil)); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for rate-limited task")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	if got := mgr.denied.Load(); got < 2 {
		t.Errorf("denied acquires = %d, want at least 2", got)
	}
	if got := mgr.released.Load(); got != 1 {
		t.Errorf("released = %d, want 1", got)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trackingExt records which hooks fired.
type trackingExt struct {
	started   atomic.Bool
	completed atomic.Bool
	failed    atomic.Bool
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnTaskStarted(_ context.Context, _ *task.Task) error {
	e.started.Store(true)
	return nil
}

func (e *trackingExt) OnTaskCompleted(_ context.Context, _ *task.Task, _ *task.Result, _ time.Duration) error {
	e.completed.Store(true)
	return nil
}

func (e *trackingExt) OnTaskFailed(_ context.Context, _ *task.Task, _ error) error {
	e.failed.Store(true)
	return nil
}

// stubManager denies the first allowAfter acquires, then allows.
type stubManager struct {
	attempts   atomic.Int64
	denied     atomic.Int64
	released   atomic.Int64
	allowAfter int64
}

func (m *stubManager) Acquire(string) bool {
	if m.attempts.Add(1) <= m.allowAfter {
		m.denied.Add(1)
		return false
	}
	return true
}

func (m *stubManager) Release(string) { m.released.Add(1) }
