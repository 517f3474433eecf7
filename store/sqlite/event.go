package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conveyordev/conveyor/event"
	"github.com/conveyordev/conveyor/id"
)

// AppendEvent persists a new event. The AUTOINCREMENT seq column
// preserves append order.
func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, workflow_id, type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		evt.ID.String(), evt.WorkflowID.String(), string(evt.Type),
		string(payload), evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: append event: %w", err)
	}
	return nil
}

// ListEvents returns events for a workflow in append order.
func (s *Store) ListEvents(ctx context.Context, workflowID id.WorkflowID, opts event.ListOpts) ([]*event.Event, error) {
	var b strings.Builder
	b.WriteString(`SELECT payload FROM events WHERE workflow_id = ?`)
	args := []any{workflowID.String()}

	if opts.Type != "" {
		b.WriteString(` AND type = ?`)
		args = append(args, string(opts.Type))
	}
	b.WriteString(` ORDER BY seq ASC`)
	if opts.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET.
		b.WriteString(` LIMIT -1`)
	}
	if opts.Offset > 0 {
		b.WriteString(` OFFSET ?`)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: list events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("conveyor/sqlite: scan event: %w", err)
		}
		var evt event.Event
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return nil, fmt.Errorf("conveyor/sqlite: unmarshal event: %w", err)
		}
		out = append(out, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: list events rows: %w", err)
	}
	return out, nil
}
