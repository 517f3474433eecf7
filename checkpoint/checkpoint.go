// Package checkpoint defines versioned persistence of workflow state.
// Every save appends a new version; history is never overwritten, so a
// run can be rolled back to any earlier version and resumed, and the
// full trail stays available for audit.
package checkpoint

import (
	"context"
	"time"

	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/workflow"
)

// Checkpoint is an immutable, versioned snapshot of workflow state.
type Checkpoint struct {
	ID         id.CheckpointID `json:"id"`
	WorkflowID id.WorkflowID   `json:"workflow_id"`
	Version    int             `json:"version"`
	State      *workflow.State `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store defines the persistence contract for checkpoints.
//
// Versions are monotonically increasing per workflow id: Save always
// appends version max+1, even after a rollback to an older version.
// Checkpoint writes for a single workflow id must be serialized by the
// caller (single-writer-per-workflow); concurrent writers to the same id
// are a caller error.
type Store interface {
	// SaveCheckpoint appends a new version capturing a deep copy of the
	// given state and returns the created checkpoint.
	SaveCheckpoint(ctx context.Context, st *workflow.State) (*Checkpoint, error)

	// LoadLatestCheckpoint returns the highest-version checkpoint for
	// the workflow. Returns conveyor.ErrCheckpointNotFound if none exist.
	LoadLatestCheckpoint(ctx context.Context, workflowID id.WorkflowID) (*Checkpoint, error)

	// LoadCheckpointVersion returns the exact version requested.
	// Returns conveyor.ErrCheckpointNotFound if it does not exist.
	LoadCheckpointVersion(ctx context.Context, workflowID id.WorkflowID, version int) (*Checkpoint, error)

	// CheckpointHistory returns all checkpoints for the workflow in
	// ascending version order.
	CheckpointHistory(ctx context.Context, workflowID id.WorkflowID) ([]*Checkpoint, error)

	// PruneCheckpoints removes all but the newest keep versions.
	// Maintenance operation; keep <= 0 is a no-op.
	PruneCheckpoints(ctx context.Context, workflowID id.WorkflowID, keep int) error
}
