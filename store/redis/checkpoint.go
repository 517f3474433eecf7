package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/checkpoint"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/workflow"
)

// SaveCheckpoint appends a new version: the Sorted Set index yields the
// current max, the snapshot is stored as JSON, and the index is updated
// in one transaction. Writes for a single workflow are serialized by the
// caller, so max+1 is race-free.
func (s *Store) SaveCheckpoint(ctx context.Context, st *workflow.State) (*checkpoint.Checkpoint, error) {
	wfID := st.ID.String()

	version := 1
	top, err := s.client.ZRevRangeWithScores(ctx, checkpointIndexKey(wfID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("conveyor/redis: save checkpoint index: %w", err)
	}
	if len(top) > 0 {
		version = int(top[0].Score) + 1
	}

	cp := &checkpoint.Checkpoint{
		ID:         id.NewCheckpointID(),
		WorkflowID: st.ID,
		Version:    version,
		State:      st.Clone(),
		CreatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("conveyor/redis: marshal checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, checkpointKey(wfID, version), payload, 0)
	pipe.ZAdd(ctx, checkpointIndexKey(wfID), goredis.Z{Score: float64(version), Member: version})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("conveyor/redis: save checkpoint: %w", err)
	}
	return cp, nil
}

// LoadLatestCheckpoint returns the highest-version checkpoint.
func (s *Store) LoadLatestCheckpoint(ctx context.Context, workflowID id.WorkflowID) (*checkpoint.Checkpoint, error) {
	wfID := workflowID.String()

	top, err := s.client.ZRevRangeWithScores(ctx, checkpointIndexKey(wfID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("conveyor/redis: load latest index: %w", err)
	}
	if len(top) == 0 {
		return nil, conveyor.ErrCheckpointNotFound
	}
	return s.getCheckpoint(ctx, wfID, int(top[0].Score))
}

// LoadCheckpointVersion returns the exact version requested.
func (s *Store) LoadCheckpointVersion(ctx context.Context, workflowID id.WorkflowID, version int) (*checkpoint.Checkpoint, error) {
	return s.getCheckpoint(ctx, workflowID.String(), version)
}

// CheckpointHistory returns all checkpoints in ascending version order.
func (s *Store) CheckpointHistory(ctx context.Context, workflowID id.WorkflowID) ([]*checkpoint.Checkpoint, error) {
	wfID := workflowID.String()

	members, err := s.client.ZRangeWithScores(ctx, checkpointIndexKey(wfID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conveyor/redis: checkpoint history index: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(members))
	for _, z := range members {
		cp, err := s.getCheckpoint(ctx, wfID, int(z.Score))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// PruneCheckpoints removes all but the newest keep versions.
func (s *Store) PruneCheckpoints(ctx context.Context, workflowID id.WorkflowID, keep int) error {
	if keep <= 0 {
		return nil
	}
	wfID := workflowID.String()

	members, err := s.client.ZRangeWithScores(ctx, checkpointIndexKey(wfID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("conveyor/redis: prune index: %w", err)
	}
	if len(members) <= keep {
		return nil
	}

	doomed := members[:len(members)-keep]
	pipe := s.client.TxPipeline()
	for _, z := range doomed {
		pipe.Del(ctx, checkpointKey(wfID, int(z.Score)))
	}
	pipe.ZRemRangeByRank(ctx, checkpointIndexKey(wfID), 0, int64(len(doomed))-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conveyor/redis: prune checkpoints: %w", err)
	}
	return nil
}

func (s *Store) getCheckpoint(ctx context.Context, wfID string, version int) (*checkpoint.Checkpoint, error) {
	payload, err := s.client.Get(ctx, checkpointKey(wfID, version)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, conveyor.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("conveyor/redis: get checkpoint: %w", err)
	}

	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("conveyor/redis: unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
