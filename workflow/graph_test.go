package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/conveyordev/conveyor/workflow"
)

func noop(context.Context, *workflow.State) (*workflow.Patch, error) {
	return &workflow.Patch{}, nil
}

func TestGraph_Validate(t *testing.T) {
	g := workflow.NewGraph("delivery", "plan").
		AddStage("plan", noop, workflow.LinearRouter("build")).
		AddStage("build", noop, nil)

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestGraph_ValidateMissingStart(t *testing.T) {
	g := workflow.NewGraph("delivery", "plan").
		AddStage("build", noop, nil)

	if err := g.Validate(); err == nil {
		t.Error("expected error for undefined start stage")
	}
}

func TestGraph_ValidateNilRun(t *testing.T) {
	g := workflow.NewGraph("delivery", "plan").
		AddStage("plan", nil, nil)

	if err := g.Validate(); err == nil {
		t.Error("expected error for stage without run function")
	}
}

func TestGraph_NilRouterTerminates(t *testing.T) {
	g := workflow.NewGraph("delivery", "plan").
		AddStage("plan", noop, nil)

	s, ok := g.Stage("plan")
	if !ok {
		t.Fatal("stage not found")
	}
	if got := s.Router.Route(workflow.NewState("delivery", nil)); got != workflow.Terminate {
		t.Errorf("Route() = %q, want Terminate", got)
	}
}

func TestGateRouter(t *testing.T) {
	st := workflow.NewState("delivery", nil)
	r := workflow.GateRouter("build", func(st *workflow.State) bool {
		return st.Output("plan") != nil
	})

	if got := r.Route(st); got != workflow.Terminate {
		t.Errorf("Route() without plan output = %q, want Terminate", got)
	}

	st.Outputs["plan"] = json.RawMessage(`{"ok":true}`)
	if got := r.Route(st); got != "build" {
		t.Errorf("Route() with plan output = %q, want build", got)
	}
}

func TestReworkRouter(t *testing.T) {
	st := workflow.NewState("delivery", nil)
	st.CurrentStage = "review"
	st.MaxReflectionRounds = 2
	r := workflow.ReworkRouter("deploy", "build")

	st.Verdict = workflow.VerdictApprove
	if got := r.Route(st); got != "deploy" {
		t.Errorf("Route() on approve = %q, want deploy", got)
	}

	st.Verdict = workflow.VerdictRework
	if got := r.Route(st); got != "build" {
		t.Errorf("Route() on first rework = %q, want build", got)
	}
	if st.ReflectionRound != 1 {
		t.Errorf("ReflectionRound = %d, want 1", st.ReflectionRound)
	}
	if got := r.Route(st); got != "build" {
		t.Errorf("Route() on second rework = %q, want build", got)
	}

	// Budget exhausted: forced progression, never a third loop.
	if got := r.Route(st); got != "deploy" {
		t.Errorf("Route() past budget = %q, want deploy", got)
	}
	if st.ReflectionRound != 2 {
		t.Errorf("ReflectionRound = %d, want 2 (never exceeds the budget)", st.ReflectionRound)
	}
	if len(st.Errors) != 1 || st.Errors[0].Message != "max reflection rounds exceeded" {
		t.Errorf("Errors = %+v, want one max-rounds entry", st.Errors)
	}
}

func TestReworkRouterBlock(t *testing.T) {
	st := workflow.NewState("delivery", nil)
	st.CurrentStage = "review"
	st.Verdict = workflow.VerdictBlock
	r := workflow.ReworkRouter("deploy", "build")

	if got := r.Route(st); got != workflow.Terminate {
		t.Errorf("Route() on block = %q, want Terminate", got)
	}
	if st.TerminalReason == "" {
		t.Error("block verdict did not record a terminal reason")
	}
}

func TestState_Clone(t *testing.T) {
	st := workflow.NewState("delivery", json.RawMessage(`{"ticket":"X-1"}`))
	st.Outputs["plan"] = json.RawMessage(`{"steps":3}`)
	st.CompletedStages = []string{"plan"}
	st.RecordError("plan", errors.New("flaky"))
	st.Feedback = []string{"tighten scope"}

	cp := st.Clone()

	// Mutating the clone must not leak into the original.
	cp.Outputs["build"] = json.RawMessage(`{}`)
	cp.CompletedStages = append(cp.CompletedStages, "build")
	cp.Errors[0].Message = "changed"
	cp.Feedback[0] = "changed"

	if _, ok := st.Outputs["build"]; ok {
		t.Error("clone output mutation leaked into original")
	}
	if len(st.CompletedStages) != 1 {
		t.Error("clone completed-stages mutation leaked into original")
	}
	if st.Errors[0].Message != "flaky" {
		t.Error("clone error mutation leaked into original")
	}
	if st.Feedback[0] != "tighten scope" {
		t.Error("clone feedback mutation leaked into original")
	}
}

func TestState_HasCompleted(t *testing.T) {
	st := workflow.NewState("delivery", nil)
	if st.HasCompleted("plan") {
		t.Error("fresh state reports completed stage")
	}
	st.CompletedStages = append(st.CompletedStages, "plan")
	if !st.HasCompleted("plan") {
		t.Error("completed stage not reported")
	}
}
