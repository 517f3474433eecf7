// Package event provides the persistent lifecycle event log: every
// significant orchestration transition (task start/complete/fail, stage
// completion, suspension, breaker trips) is appended as a structured
// record queryable by workflow id.
package event

import (
	"time"

	"github.com/conveyordev/conveyor/id"
)

// Type names the lifecycle transition an event records.
type Type string

const (
	TypeTaskEnqueued  Type = "task.enqueued"
	TypeTaskStarted   Type = "task.started"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskFailed    Type = "task.failed"
	TypeTaskCancelled Type = "task.cancelled"

	TypeWorkflowStarted    Type = "workflow.started"
	TypeStageCompleted     Type = "workflow.stage_completed"
	TypeStageFailed        Type = "workflow.stage_failed"
	TypeWorkflowSuspended  Type = "workflow.suspended"
	TypeWorkflowResumed    Type = "workflow.resumed"
	TypeWorkflowCompleted  Type = "workflow.completed"
	TypeWorkflowTerminated Type = "workflow.terminated"
	TypeWorkflowFailed     Type = "workflow.failed"

	TypeBreakerStateChanged Type = "breaker.state_changed"
	TypeApprovalBypassed    Type = "approval.bypassed"
)

// Event is one structured lifecycle record.
type Event struct {
	ID         id.EventID    `json:"id"`
	Type       Type          `json:"type"`
	WorkflowID id.WorkflowID `json:"workflow_id,omitempty"`
	TaskID     id.TaskID     `json:"task_id,omitempty"`
	Stage      string        `json:"stage,omitempty"`
	HandlerID  string        `json:"handler_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// New creates an event of the given type stamped with the current time.
func New(t Type) *Event {
	return &Event{
		ID:        id.NewEventID(),
		Type:      t,
		CreatedAt: time.Now().UTC(),
	}
}
