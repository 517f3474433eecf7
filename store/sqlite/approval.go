package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/approval"
	"github.com/conveyordev/conveyor/id"
)

// CreateApproval persists a new pending request. The partial unique
// index on (workflow_id) WHERE status = 'pending' enforces the
// one-pending-per-workflow invariant at the schema level.
func (s *Store) CreateApproval(ctx context.Context, req *approval.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: marshal approval: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, workflow_id, stage, status, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID.String(), req.WorkflowID.String(), req.Stage, string(req.Status),
		string(payload), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return conveyor.ErrApprovalPending
		}
		return fmt.Errorf("conveyor/sqlite: create approval: %w", err)
	}
	return nil
}

// GetApproval retrieves a request by id.
func (s *Store) GetApproval(ctx context.Context, approvalID id.ApprovalID) (*approval.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM approvals WHERE id = ?`,
		approvalID.String(),
	)
	return scanApproval(row)
}

// PendingApproval returns the workflow's pending request.
func (s *Store) PendingApproval(ctx context.Context, workflowID id.WorkflowID) (*approval.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM approvals WHERE workflow_id = ? AND status = ?`,
		workflowID.String(), string(approval.StatusPending),
	)
	return scanApproval(row)
}

// UpdateApproval persists changes to an existing request.
func (s *Store) UpdateApproval(ctx context.Context, req *approval.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: marshal approval: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = ?, payload = ?, updated_at = ? WHERE id = ?`,
		string(req.Status), string(payload), req.UpdatedAt, req.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: update approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: update approval affected: %w", err)
	}
	if affected == 0 {
		return conveyor.ErrApprovalNotFound
	}
	return nil
}

// ListApprovals returns all requests for a workflow, oldest first.
func (s *Store) ListApprovals(ctx context.Context, workflowID id.WorkflowID) ([]*approval.Request, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM approvals WHERE workflow_id = ? ORDER BY created_at ASC`,
		workflowID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: list approvals: %w", err)
	}
	defer rows.Close()

	var out []*approval.Request
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: list approvals rows: %w", err)
	}
	return out, nil
}

func scanApproval(row rowScanner) (*approval.Request, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conveyor.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("conveyor/sqlite: scan approval: %w", err)
	}

	var req approval.Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: unmarshal approval: %w", err)
	}
	return &req, nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. The modernc driver exposes it only through the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
