package event

import (
	"context"

	"github.com/conveyordev/conveyor/id"
)

// ListOpts controls pagination for event queries.
type ListOpts struct {
	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
	// Offset is the number of events to skip.
	Offset int
	// Type filters by event type. Empty means all types.
	Type Type
}

// Store defines the persistence contract for lifecycle events.
type Store interface {
	// AppendEvent persists a new event.
	AppendEvent(ctx context.Context, evt *Event) error

	// ListEvents returns events for a workflow in append order.
	ListEvents(ctx context.Context, workflowID id.WorkflowID, opts ListOpts) ([]*Event, error)
}
