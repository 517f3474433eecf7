// Package approval defines human-in-the-loop approval requests: the
// suspend/resume records created when a workflow reaches an interrupt
// point. The gate behavior itself (checkpoint + suspend + fail-open)
// lives in the engine package.
package approval

import (
	"context"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/workflow"
)

// Status tracks an approval request's lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is the resolution supplied when resuming a suspended workflow.
type Decision struct {
	// Approve continues the workflow; rejection terminates it.
	Approve bool `json:"approve"`

	// Reviewer identifies who decided. Optional.
	Reviewer string `json:"reviewer,omitempty"`

	// Comment carries the reviewer's note. Optional.
	Comment string `json:"comment,omitempty"`
}

// Request is a persisted approval request. A workflow holds at most one
// pending request at a time.
type Request struct {
	conveyor.Entity

	ID              id.ApprovalID   `json:"id"`
	WorkflowID      id.WorkflowID   `json:"workflow_id"`
	Stage           string          `json:"stage"`
	Status          Status          `json:"status"`
	ContextSnapshot *workflow.State `json:"context_snapshot,omitempty"`
	Reviewer        string          `json:"reviewer,omitempty"`
	Comment         string          `json:"comment,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
}

// NewRequest creates a pending request for the given workflow and stage.
// The state is cloned so later workflow mutations don't alter the
// snapshot the reviewer sees.
func NewRequest(workflowID id.WorkflowID, stage string, st *workflow.State) *Request {
	return &Request{
		Entity:          conveyor.NewEntity(),
		ID:              id.NewApprovalID(),
		WorkflowID:      workflowID,
		Stage:           stage,
		Status:          StatusPending,
		ContextSnapshot: st.Clone(),
	}
}

// Resolve applies a decision to the request.
func (r *Request) Resolve(d Decision) {
	if d.Approve {
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	r.Reviewer = d.Reviewer
	r.Comment = d.Comment
	now := time.Now().UTC()
	r.ReviewedAt = &now
	r.Touch()
}

// Store defines the persistence contract for approval requests.
type Store interface {
	// CreateApproval persists a new pending request. Returns
	// conveyor.ErrApprovalPending if the workflow already has one.
	CreateApproval(ctx context.Context, req *Request) error

	// GetApproval retrieves a request by id. Returns
	// conveyor.ErrApprovalNotFound if absent.
	GetApproval(ctx context.Context, approvalID id.ApprovalID) (*Request, error)

	// PendingApproval returns the workflow's pending request. Returns
	// conveyor.ErrApprovalNotFound if there is none.
	PendingApproval(ctx context.Context, workflowID id.WorkflowID) (*Request, error)

	// UpdateApproval persists changes to an existing request.
	UpdateApproval(ctx context.Context, req *Request) error

	// ListApprovals returns all requests for a workflow, oldest first.
	ListApprovals(ctx context.Context, workflowID id.WorkflowID) ([]*Request, error)
}
