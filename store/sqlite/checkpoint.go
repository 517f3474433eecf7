package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/checkpoint"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/workflow"
)

// SaveCheckpoint appends a new version inside one transaction: the
// current max version is read and the snapshot inserted at max+1. The
// UNIQUE(workflow_id, version) constraint backstops concurrent writers.
func (s *Store) SaveCheckpoint(ctx context.Context, st *workflow.State) (*checkpoint.Checkpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: begin save checkpoint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxVersion sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM checkpoints WHERE workflow_id = ?`,
		st.ID.String(),
	).Scan(&maxVersion)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: max version: %w", err)
	}

	cp := &checkpoint.Checkpoint{
		ID:         id.NewCheckpointID(),
		WorkflowID: st.ID,
		Version:    int(maxVersion.Int64) + 1,
		State:      st.Clone(),
		CreatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: marshal state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, workflow_id, version, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cp.ID.String(), cp.WorkflowID.String(), cp.Version, string(payload), cp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: insert checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: commit checkpoint: %w", err)
	}
	return cp, nil
}

// LoadLatestCheckpoint returns the highest-version checkpoint.
func (s *Store) LoadLatestCheckpoint(ctx context.Context, workflowID id.WorkflowID) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, version, payload, created_at
		 FROM checkpoints WHERE workflow_id = ?
		 ORDER BY version DESC LIMIT 1`,
		workflowID.String(),
	)
	return scanCheckpoint(row)
}

// LoadCheckpointVersion returns the exact version requested.
func (s *Store) LoadCheckpointVersion(ctx context.Context, workflowID id.WorkflowID, version int) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, version, payload, created_at
		 FROM checkpoints WHERE workflow_id = ? AND version = ?`,
		workflowID.String(), version,
	)
	return scanCheckpoint(row)
}

// CheckpointHistory returns all checkpoints in ascending version order.
func (s *Store) CheckpointHistory(ctx context.Context, workflowID id.WorkflowID) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, version, payload, created_at
		 FROM checkpoints WHERE workflow_id = ?
		 ORDER BY version ASC`,
		workflowID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: checkpoint history: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: checkpoint history rows: %w", err)
	}
	return out, nil
}

// PruneCheckpoints removes all but the newest keep versions.
func (s *Store) PruneCheckpoints(ctx context.Context, workflowID id.WorkflowID, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints
		 WHERE workflow_id = ?
		   AND version NOT IN (
		     SELECT version FROM checkpoints WHERE workflow_id = ?
		     ORDER BY version DESC LIMIT ?
		   )`,
		workflowID.String(), workflowID.String(), keep,
	)
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: prune checkpoints: %w", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*checkpoint.Checkpoint, error) {
	var (
		cpID, wfID, payload string
		version             int
		createdAt           time.Time
	)
	err := row.Scan(&cpID, &wfID, &version, &payload, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conveyor.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("conveyor/sqlite: scan checkpoint: %w", err)
	}

	parsedCP, err := id.ParseCheckpointID(cpID)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: parse checkpoint id: %w", err)
	}
	parsedWF, err := id.ParseWorkflowID(wfID)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: parse workflow id: %w", err)
	}

	var st workflow.State
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: unmarshal state: %w", err)
	}

	return &checkpoint.Checkpoint{
		ID:         parsedCP,
		WorkflowID: parsedWF,
		Version:    version,
		State:      &st,
		CreatedAt:  createdAt,
	}, nil
}
