package event_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/event"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/store/memory"
	"github.com/conveyordev/conveyor/task"
	"github.com/conveyordev/conveyor/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRecorder(t *testing.T) (*event.Recorder, *memory.Store) {
	t.Helper()
	st := memory.New()
	return event.NewRecorder(st, discardLogger()), st
}

func listAll(t *testing.T, st *memory.Store, wfID id.WorkflowID) []*event.Event {
	t.Helper()
	evts, err := st.ListEvents(context.Background(), wfID, event.ListOpts{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	return evts
}

func TestRecorderTaskLifecycle(t *testing.T) {
	rec, st := newRecorder(t)
	ctx := context.Background()

	wfID := id.NewWorkflowID()
	tsk := &task.Task{
		ID:         id.NewTaskID(),
		HandlerID:  "generate-plan",
		WorkflowID: wfID,
	}

	if err := rec.OnTaskEnqueued(ctx, tsk); err != nil {
		t.Fatalf("OnTaskEnqueued() error = %v", err)
	}
	if err := rec.OnTaskStarted(ctx, tsk); err != nil {
		t.Fatalf("OnTaskStarted() error = %v", err)
	}
	res := &task.Result{TaskID: tsk.ID, HandlerID: tsk.HandlerID, Status: task.StatusSuccess}
	if err := rec.OnTaskCompleted(ctx, tsk, res, 150*time.Millisecond); err != nil {
		t.Fatalf("OnTaskCompleted() error = %v", err)
	}

	evts := listAll(t, st, wfID)
	if len(evts) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(evts))
	}

	wantTypes := []event.Type{event.TypeTaskEnqueued, event.TypeTaskStarted, event.TypeTaskCompleted}
	for i, want := range wantTypes {
		if evts[i].Type != want {
			t.Errorf("events[%d].Type = %q, want %q", i, evts[i].Type, want)
		}
		if evts[i].TaskID != tsk.ID {
			t.Errorf("events[%d].TaskID = %v, want %v", i, evts[i].TaskID, tsk.ID)
		}
		if evts[i].HandlerID != "generate-plan" {
			t.Errorf("events[%d].HandlerID = %q, want %q", i, evts[i].HandlerID, "generate-plan")
		}
	}

	if evts[2].Duration != 150*time.Millisecond {
		t.Errorf("completed event Duration = %v, want %v", evts[2].Duration, 150*time.Millisecond)
	}
	if evts[2].Message != string(task.StatusSuccess) {
		t.Errorf("completed event Message = %q, want %q", evts[2].Message, task.StatusSuccess)
	}
}

func TestRecorderTaskFailedMessage(t *testing.T) {
	rec, st := newRecorder(t)
	ctx := context.Background()

	wfID := id.NewWorkflowID()
	tsk := &task.Task{ID: id.NewTaskID(), HandlerID: "run-tests", WorkflowID: wfID}

	if err := rec.OnTaskFailed(ctx, tsk, errors.New("exit status 1")); err != nil {
		t.Fatalf("OnTaskFailed() error = %v", err)
	}

	evts := listAll(t, st, wfID)
	if len(evts) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(evts))
	}
	if evts[0].Type != event.TypeTaskFailed {
		t.Errorf("Type = %q, want %q", evts[0].Type, event.TypeTaskFailed)
	}
	if evts[0].Message != "exit status 1" {
		t.Errorf("Message = %q, want %q", evts[0].Message, "exit status 1")
	}
}

func TestRecorderWorkflowLifecycle(t *testing.T) {
	rec, st := newRecorder(t)
	ctx := context.Background()

	state := workflow.NewState("code-review", nil)

	if err := rec.OnWorkflowStarted(ctx, state); err != nil {
		t.Fatalf("OnWorkflowStarted() error = %v", err)
	}
	if err := rec.OnStageCompleted(ctx, state, "plan", 50*time.Millisecond); err != nil {
		t.Fatalf("OnStageCompleted() error = %v", err)
	}
	if err := rec.OnWorkflowSuspended(ctx, state, "deploy"); err != nil {
		t.Fatalf("OnWorkflowSuspended() error = %v", err)
	}
	if err := rec.OnWorkflowResumed(ctx, state, "deploy"); err != nil {
		t.Fatalf("OnWorkflowResumed() error = %v", err)
	}
	if err := rec.OnWorkflowCompleted(ctx, state, time.Second); err != nil {
		t.Fatalf("OnWorkflowCompleted() error = %v", err)
	}

	evts := listAll(t, st, state.ID)
	wantTypes := []event.Type{
		event.TypeWorkflowStarted,
		event.TypeStageCompleted,
		event.TypeWorkflowSuspended,
		event.TypeWorkflowResumed,
		event.TypeWorkflowCompleted,
	}
	if len(evts) != len(wantTypes) {
		t.Fatalf("len(events) = %d, want %d", len(evts), len(wantTypes))
	}
	for i, want := range wantTypes {
		if evts[i].Type != want {
			t.Errorf("events[%d].Type = %q, want %q", i, evts[i].Type, want)
		}
	}

	if evts[0].Message != "code-review" {
		t.Errorf("started event Message = %q, want pipeline name", evts[0].Message)
	}
	if evts[1].Stage != "plan" {
		t.Errorf("stage event Stage = %q, want %q", evts[1].Stage, "plan")
	}
	if evts[2].Stage != "deploy" {
		t.Errorf("suspended event Stage = %q, want %q", evts[2].Stage, "deploy")
	}
}

func TestRecorderWorkflowTerminated(t *testing.T) {
	rec, st := newRecorder(t)
	ctx := context.Background()

	state := workflow.NewState("code-review", nil)
	state.CurrentStage = "review"

	if err := rec.OnWorkflowTerminated(ctx, state, "review rejected the change"); err != nil {
		t.Fatalf("OnWorkflowTerminated() error = %v", err)
	}

	evts := listAll(t, st, state.ID)
	if len(evts) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(evts))
	}
	if evts[0].Type != event.TypeWorkflowTerminated {
		t.Errorf("Type = %q, want %q", evts[0].Type, event.TypeWorkflowTerminated)
	}
	if evts[0].Stage != "review" {
		t.Errorf("Stage = %q, want %q", evts[0].Stage, "review")
	}
	if evts[0].Message != "review rejected the change" {
		t.Errorf("Message = %q, want reason", evts[0].Message)
	}
}

func TestRecorderBreakerStateChanged(t *testing.T) {
	rec, st := newRecorder(t)
	ctx := context.Background()

	change := breaker.StateChange{
		HandlerID: "deploy-service",
		From:      breaker.StateClosed,
		To:        breaker.StateOpen,
		At:        time.Now(),
	}
	if err := rec.OnBreakerStateChanged(ctx, change); err != nil {
		t.Fatalf("OnBreakerStateChanged() error = %v", err)
	}

	// Breaker events carry no workflow id; list with the nil id.
	evts := listAll(t, st, id.Nil)
	if len(evts) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(evts))
	}
	if evts[0].Type != event.TypeBreakerStateChanged {
		t.Errorf("Type = %q, want %q", evts[0].Type, event.TypeBreakerStateChanged)
	}
	if evts[0].HandlerID != "deploy-service" {
		t.Errorf("HandlerID = %q, want %q", evts[0].HandlerID, "deploy-service")
	}
	if evts[0].Message != "closed -> open" {
		t.Errorf("Message = %q, want %q", evts[0].Message, "closed -> open")
	}
}
