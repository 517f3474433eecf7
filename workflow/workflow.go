// Package workflow defines workflow state, pipeline graphs, stage
// routing, and review verdicts for the orchestration engine.
package workflow

import (
	"encoding/json"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/id"
)

// RunStatus represents the lifecycle status of a workflow run.
type RunStatus string

const (
	// StatusRunning means the workflow is currently executing.
	StatusRunning RunStatus = "running"
	// StatusCompleted means the workflow finished successfully.
	StatusCompleted RunStatus = "completed"
	// StatusTerminated means a routing decision stopped the workflow.
	StatusTerminated RunStatus = "terminated"
	// StatusAwaitingApproval means the workflow is suspended at an
	// interrupt point, waiting for a human decision.
	StatusAwaitingApproval RunStatus = "awaiting_approval"
	// StatusFailed means a stage failed terminally.
	StatusFailed RunStatus = "failed"
)

// ApprovalStatus tracks the human decision attached to a workflow run.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Verdict is the outcome of a quality-review stage.
type Verdict string

const (
	// VerdictApprove lets the workflow proceed.
	VerdictApprove Verdict = "approve"
	// VerdictRework routes the workflow back to an earlier stage.
	VerdictRework Verdict = "rework"
	// VerdictBlock terminates the workflow.
	VerdictBlock Verdict = "block"
)

// StageError records a stage-handler failure captured into the workflow
// state and handed to the routing function.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// State is the mutable state of a single workflow run. It is owned by
// one engine goroutine at a time; workflow instances never share state
// (circuit breakers are the only cross-instance resource).
type State struct {
	conveyor.Entity

	ID              id.WorkflowID              `json:"id"`
	Pipeline        string                     `json:"pipeline"`
	Status          RunStatus                  `json:"status"`
	CurrentStage    string                     `json:"current_stage"`
	CompletedStages []string                   `json:"completed_stages"`
	Outputs         map[string]json.RawMessage `json:"outputs"`
	Verdict         Verdict                    `json:"verdict,omitempty"`
	ReflectionRound int                        `json:"reflection_round"`

	// MaxReflectionRounds is the rework budget stamped onto the state
	// when the run starts. ReflectionRound never exceeds it.
	MaxReflectionRounds int `json:"max_reflection_rounds,omitempty"`

	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Errors         []StageError   `json:"errors,omitempty"`
	Feedback       []string       `json:"feedback,omitempty"`
	TerminalReason string         `json:"terminal_reason,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NewState creates the initial state for a workflow run.
func NewState(pipeline string, input json.RawMessage) *State {
	st := &State{
		Entity:         conveyor.NewEntity(),
		ID:             id.NewWorkflowID(),
		Pipeline:       pipeline,
		Status:         StatusRunning,
		ApprovalStatus: ApprovalNone,
		Outputs:        make(map[string]json.RawMessage),
		StartedAt:      time.Now().UTC(),
	}
	if len(input) > 0 {
		st.Outputs["input"] = input
	}
	return st
}

// Output returns the stored output of the named stage, or nil.
func (s *State) Output(stage string) json.RawMessage {
	return s.Outputs[stage]
}

// HasCompleted reports whether the named stage has completed at least once.
func (s *State) HasCompleted(stage string) bool {
	for _, name := range s.CompletedStages {
		if name == stage {
			return true
		}
	}
	return false
}

// RecordError appends a stage failure to the error history.
func (s *State) RecordError(stage string, err error) {
	s.Errors = append(s.Errors, StageError{Stage: stage, Message: err.Error()})
	s.Touch()
}

// Clone returns a deep copy of the state, used for checkpoint snapshots
// and approval context so later mutations don't leak into history.
func (s *State) Clone() *State {
	cp := *s

	cp.CompletedStages = append([]string(nil), s.CompletedStages...)
	cp.Errors = append([]StageError(nil), s.Errors...)
	cp.Feedback = append([]string(nil), s.Feedback...)

	cp.Outputs = make(map[string]json.RawMessage, len(s.Outputs))
	for k, v := range s.Outputs {
		cp.Outputs[k] = append(json.RawMessage(nil), v...)
	}

	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
