package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conveyordev/conveyor/event"
	"github.com/conveyordev/conveyor/id"
)

// AppendEvent pushes the event onto the workflow's log list.
func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("conveyor/redis: marshal event: %w", err)
	}
	if err := s.client.RPush(ctx, eventsKey(evt.WorkflowID.String()), payload).Err(); err != nil {
		return fmt.Errorf("conveyor/redis: append event: %w", err)
	}
	return nil
}

// ListEvents returns events for a workflow in append order. Type
// filtering and pagination are applied client-side over the list.
func (s *Store) ListEvents(ctx context.Context, workflowID id.WorkflowID, opts event.ListOpts) ([]*event.Event, error) {
	payloads, err := s.client.LRange(ctx, eventsKey(workflowID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conveyor/redis: list events: %w", err)
	}

	var matched []*event.Event
	for _, payload := range payloads {
		var evt event.Event
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return nil, fmt.Errorf("conveyor/redis: unmarshal event: %w", err)
		}
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		matched = append(matched, &evt)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}
