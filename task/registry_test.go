package task_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/task"
)

type buildInput struct {
	Target string `json:"target"`
}

func TestRegisterDefinition_DecodesTypedInput(t *testing.T) {
	r := task.NewRegistry()

	var got buildInput
	task.RegisterDefinition(r, task.NewDefinition("builder", func(_ *task.Context, in buildInput) (*task.Output, error) {
		got = in
		return &task.Output{Status: task.StatusSuccess}, nil
	}))

	h, ok := r.Get("builder")
	if !ok {
		t.Fatal("handler not registered")
	}

	hctx := task.NewContext(context.Background(), id.NewTaskID(), "builder", slog.Default())
	out, err := h(hctx, []byte(`{"target":"api"}`))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if out.Status != task.StatusSuccess {
		t.Errorf("Status = %q, want success", out.Status)
	}
	if got.Target != "api" {
		t.Errorf("decoded Target = %q, want %q", got.Target, "api")
	}
}

func TestRegisterDefinition_BadInputFails(t *testing.T) {
	r := task.NewRegistry()
	task.RegisterDefinition(r, task.NewDefinition("builder", func(_ *task.Context, _ buildInput) (*task.Output, error) {
		return &task.Output{Status: task.StatusSuccess}, nil
	}))

	h, _ := r.Get("builder")
	hctx := task.NewContext(context.Background(), id.NewTaskID(), "builder", slog.Default())
	if _, err := h(hctx, []byte(`{not json`)); err == nil {
		t.Error("expected unmarshal error for malformed input")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := task.NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Error("Get returned true for unregistered handler")
	}
}

func TestContext_ProgressClamped(t *testing.T) {
	var fractions []float64
	hctx := task.NewContext(context.Background(), id.NewTaskID(), "h", slog.Default(),
		task.WithProgress(func(f float64, _ string) { fractions = append(fractions, f) }))

	hctx.ReportProgress(-0.5, "start")
	hctx.ReportProgress(0.5, "half")
	hctx.ReportProgress(1.5, "done")

	want := []float64{0, 0.5, 1}
	if len(fractions) != len(want) {
		t.Fatalf("got %d reports, want %d", len(fractions), len(want))
	}
	for i := range want {
		if fractions[i] != want[i] {
			t.Errorf("fraction %d = %v, want %v", i, fractions[i], want[i])
		}
	}
}

func TestContext_IsCancelled(t *testing.T) {
	var flag atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	hctx := task.NewContext(ctx, id.NewTaskID(), "h", slog.Default(), task.WithCancelFlag(&flag))

	if hctx.IsCancelled() {
		t.Error("fresh context reports cancelled")
	}

	flag.Store(true)
	if !hctx.IsCancelled() {
		t.Error("cancellation flag not observed")
	}

	flag.Store(false)
	cancel()
	if !hctx.IsCancelled() {
		t.Error("context cancellation not observed")
	}
}
