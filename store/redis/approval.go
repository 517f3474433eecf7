package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/approval"
	"github.com/conveyordev/conveyor/id"
)

// CreateApproval persists a new pending request. The per-workflow pending
// pointer is claimed with SETNX, so at most one pending request can exist
// even under concurrent creators.
func (s *Store) CreateApproval(ctx context.Context, req *approval.Request) error {
	wfID := req.WorkflowID.String()
	reqID := req.ID.String()

	claimed, err := s.client.SetNX(ctx, approvalPendingKey(wfID), reqID, 0).Result()
	if err != nil {
		return fmt.Errorf("conveyor/redis: claim pending approval: %w", err)
	}
	if !claimed {
		return conveyor.ErrApprovalPending
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("conveyor/redis: marshal approval: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, approvalKey(reqID), payload, 0)
	pipe.SAdd(ctx, approvalIndexKey(wfID), reqID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conveyor/redis: create approval: %w", err)
	}
	return nil
}

// GetApproval retrieves a request by id.
func (s *Store) GetApproval(ctx context.Context, approvalID id.ApprovalID) (*approval.Request, error) {
	return s.getApproval(ctx, approvalID.String())
}

// PendingApproval returns the workflow's pending request.
func (s *Store) PendingApproval(ctx context.Context, workflowID id.WorkflowID) (*approval.Request, error) {
	reqID, err := s.client.Get(ctx, approvalPendingKey(workflowID.String())).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, conveyor.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("conveyor/redis: get pending pointer: %w", err)
	}
	return s.getApproval(ctx, reqID)
}

// UpdateApproval persists changes to an existing request. Resolving a
// request releases the workflow's pending pointer.
func (s *Store) UpdateApproval(ctx context.Context, req *approval.Request) error {
	reqID := req.ID.String()
	key := approvalKey(reqID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conveyor/redis: update approval exists: %w", err)
	}
	if exists == 0 {
		return conveyor.ErrApprovalNotFound
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("conveyor/redis: marshal approval: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	if req.Status != approval.StatusPending {
		pendingKey := approvalPendingKey(req.WorkflowID.String())
		// Release the pointer only if it still names this request.
		current, getErr := s.client.Get(ctx, pendingKey).Result()
		if getErr == nil && current == reqID {
			pipe.Del(ctx, pendingKey)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conveyor/redis: update approval: %w", err)
	}
	return nil
}

// ListApprovals returns all requests for a workflow, oldest first.
func (s *Store) ListApprovals(ctx context.Context, workflowID id.WorkflowID) ([]*approval.Request, error) {
	ids, err := s.client.SMembers(ctx, approvalIndexKey(workflowID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("conveyor/redis: list approvals index: %w", err)
	}

	out := make([]*approval.Request, 0, len(ids))
	for _, reqID := range ids {
		req, err := s.getApproval(ctx, reqID)
		if err != nil {
			if errors.Is(err, conveyor.ErrApprovalNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) getApproval(ctx context.Context, reqID string) (*approval.Request, error) {
	payload, err := s.client.Get(ctx, approvalKey(reqID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, conveyor.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("conveyor/redis: get approval: %w", err)
	}

	var req approval.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("conveyor/redis: unmarshal approval: %w", err)
	}
	return &req, nil
}
