package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/approval"
	"github.com/conveyordev/conveyor/event"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/store/memory"
	"github.com/conveyordev/conveyor/workflow"
)

func newState() *workflow.State {
	return workflow.NewState("release", json.RawMessage(`{"target":"v2"}`))
}

// ---------------------------------------------------------------------------
// Checkpoints
// ---------------------------------------------------------------------------

func TestSaveCheckpointVersionsAreMonotonic(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()

	for want := 1; want <= 3; want++ {
		cp, err := s.SaveCheckpoint(ctx, st)
		if err != nil {
			t.Fatalf("SaveCheckpoint() error = %v", err)
		}
		if cp.Version != want {
			t.Errorf("version = %d, want %d", cp.Version, want)
		}
	}
}

func TestLoadLatestCheckpoint(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()

	if _, err := s.LoadLatestCheckpoint(ctx, st.ID); !errors.Is(err, conveyor.ErrCheckpointNotFound) {
		t.Errorf("LoadLatestCheckpoint() error = %v, want ErrCheckpointNotFound", err)
	}

	st.CurrentStage = "plan"
	if _, err := s.SaveCheckpoint(ctx, st); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}
	st.CurrentStage = "build"
	if _, err := s.SaveCheckpoint(ctx, st); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	cp, err := s.LoadLatestCheckpoint(ctx, st.ID)
	if err != nil {
		t.Fatalf("LoadLatestCheckpoint() error = %v", err)
	}
	if cp.Version != 2 {
		t.Errorf("version = %d, want 2", cp.Version)
	}
	if cp.State.CurrentStage != "build" {
		t.Errorf("current stage = %q, want %q", cp.State.CurrentStage, "build")
	}
}

func TestLoadCheckpointVersion(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()

	st.CurrentStage = "plan"
	s.SaveCheckpoint(ctx, st)
	st.CurrentStage = "build"
	s.SaveCheckpoint(ctx, st)

	cp, err := s.LoadCheckpointVersion(ctx, st.ID, 1)
	if err != nil {
		t.Fatalf("LoadCheckpointVersion() error = %v", err)
	}
	if cp.State.CurrentStage != "plan" {
		t.Errorf("current stage = %q, want %q", cp.State.CurrentStage, "plan")
	}

	if _, err := s.LoadCheckpointVersion(ctx, st.ID, 99); !errors.Is(err, conveyor.ErrCheckpointNotFound) {
		t.Errorf("LoadCheckpointVersion(99) error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestCheckpointSnapshotsAreImmutable(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()
	st.CurrentStage = "plan"

	if _, err := s.SaveCheckpoint(ctx, st); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	// Mutating the live state must not leak into the stored snapshot.
	st.CurrentStage = "build"
	st.Outputs["plan"] = json.RawMessage(`"mutated"`)

	cp, err := s.LoadLatestCheckpoint(ctx, st.ID)
	if err != nil {
		t.Fatalf("LoadLatestCheckpoint() error = %v", err)
	}
	if cp.State.CurrentStage != "plan" {
		t.Errorf("snapshot stage = %q, want %q", cp.State.CurrentStage, "plan")
	}
	if _, ok := cp.State.Outputs["plan"]; ok {
		t.Error("snapshot picked up a mutation made after save")
	}

	// Mutating a loaded snapshot must not affect the store.
	cp.State.CurrentStage = "hacked"
	again, _ := s.LoadLatestCheckpoint(ctx, st.ID)
	if again.State.CurrentStage != "plan" {
		t.Errorf("stored stage = %q after snapshot mutation, want %q", again.State.CurrentStage, "plan")
	}
}

func TestCheckpointHistoryAscending(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()

	for range 4 {
		s.SaveCheckpoint(ctx, st)
	}

	history, err := s.CheckpointHistory(ctx, st.ID)
	if err != nil {
		t.Fatalf("CheckpointHistory() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}
	for i, cp := range history {
		if cp.Version != i+1 {
			t.Errorf("history[%d].Version = %d, want %d", i, cp.Version, i+1)
		}
	}
}

func TestPruneCheckpoints(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()

	for range 5 {
		s.SaveCheckpoint(ctx, st)
	}
	if err := s.PruneCheckpoints(ctx, st.ID, 2); err != nil {
		t.Fatalf("PruneCheckpoints() error = %v", err)
	}

	history, _ := s.CheckpointHistory(ctx, st.ID)
	if len(history) != 2 {
		t.Fatalf("len(history) = %d after prune, want 2", len(history))
	}
	if history[0].Version != 4 || history[1].Version != 5 {
		t.Errorf("kept versions %d,%d, want 4,5", history[0].Version, history[1].Version)
	}

	// The next save continues from the surviving max.
	cp, _ := s.SaveCheckpoint(ctx, st)
	if cp.Version != 6 {
		t.Errorf("version after prune = %d, want 6", cp.Version)
	}

	// keep <= 0 is a no-op.
	if err := s.PruneCheckpoints(ctx, st.ID, 0); err != nil {
		t.Fatalf("PruneCheckpoints(0) error = %v", err)
	}
	history, _ = s.CheckpointHistory(ctx, st.ID)
	if len(history) != 3 {
		t.Errorf("len(history) = %d after no-op prune, want 3", len(history))
	}
}

// ---------------------------------------------------------------------------
// Approvals
// ---------------------------------------------------------------------------

func TestCreateApprovalSinglePending(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()

	first := approval.NewRequest(st.ID, "deploy", st)
	if err := s.CreateApproval(ctx, first); err != nil {
		t.Fatalf("CreateApproval() error = %v", err)
	}

	second := approval.NewRequest(st.ID, "deploy", st)
	if err := s.CreateApproval(ctx, second); !errors.Is(err, conveyor.ErrApprovalPending) {
		t.Errorf("CreateApproval() error = %v, want ErrApprovalPending", err)
	}

	// Resolving the first frees the slot.
	first.Resolve(approval.Decision{Approve: true, Reviewer: "ops"})
	if err := s.UpdateApproval(ctx, first); err != nil {
		t.Fatalf("UpdateApproval() error = %v", err)
	}
	if err := s.CreateApproval(ctx, second); err != nil {
		t.Errorf("CreateApproval() after resolve error = %v", err)
	}
}

func TestPendingApproval(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	st := newState()

	if _, err := s.PendingApproval(ctx, st.ID); !errors.Is(err, conveyor.ErrApprovalNotFound) {
		t.Errorf("PendingApproval() error = %v, want ErrApprovalNotFound", err)
	}

	req := approval.NewRequest(st.ID, "deploy", st)
	s.CreateApproval(ctx, req)

	got, err := s.PendingApproval(ctx, st.ID)
	if err != nil {
		t.Fatalf("PendingApproval() error = %v", err)
	}
	if got.ID != req.ID {
		t.Errorf("pending id = %s, want %s", got.ID, req.ID)
	}
}

func TestGetApprovalNotFound(t *testing.T) {
	s := memory.New()

	if _, err := s.GetApproval(context.Background(), id.NewApprovalID()); !errors.Is(err, conveyor.ErrApprovalNotFound) {
		t.Errorf("GetApproval() error = %v, want ErrApprovalNotFound", err)
	}
}

func TestUpdateApprovalUnknown(t *testing.T) {
	s := memory.New()
	st := newState()
	req := approval.NewRequest(st.ID, "deploy", st)

	if err := s.UpdateApproval(context.Background(), req); !errors.Is(err, conveyor.ErrApprovalNotFound) {
		t.Errorf("UpdateApproval() error = %v, want ErrApprovalNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestAppendAndListEvents(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	wfID := id.NewWorkflowID()
	other := id.NewWorkflowID()

	for _, typ := range []event.Type{event.TypeWorkflowStarted, event.TypeStageCompleted, event.TypeStageCompleted} {
		evt := event.New(typ)
		evt.WorkflowID = wfID
		if err := s.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}
	noise := event.New(event.TypeWorkflowStarted)
	noise.WorkflowID = other
	s.AppendEvent(ctx, noise)

	all, err := s.ListEvents(ctx, wfID, event.ListOpts{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(all))
	}
	if all[0].Type != event.TypeWorkflowStarted {
		t.Errorf("first event type = %s, want %s", all[0].Type, event.TypeWorkflowStarted)
	}

	stages, err := s.ListEvents(ctx, wfID, event.ListOpts{Type: event.TypeStageCompleted})
	if err != nil {
		t.Fatalf("ListEvents(type) error = %v", err)
	}
	if len(stages) != 2 {
		t.Errorf("len(stage events) = %d, want 2", len(stages))
	}

	page, err := s.ListEvents(ctx, wfID, event.ListOpts{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListEvents(page) error = %v", err)
	}
	if len(page) != 1 {
		t.Errorf("len(page) = %d, want 1", len(page))
	}
}
