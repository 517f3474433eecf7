// Package memory is a fully in-memory store.Store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/approval"
	"github.com/conveyordev/conveyor/checkpoint"
	"github.com/conveyordev/conveyor/event"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/workflow"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle in tests that use both), so we
// verify each subsystem.
var (
	_ checkpoint.Store = (*Store)(nil)
	_ approval.Store   = (*Store)(nil)
	_ event.Store      = (*Store)(nil)
)

// Store holds everything in process memory.
type Store struct {
	mu sync.RWMutex

	checkpoints map[string][]*checkpoint.Checkpoint // workflow ID → ascending versions
	approvals   map[string]*approval.Request        // approval ID → request
	events      []*event.Event                      // append-only log
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		checkpoints: make(map[string][]*checkpoint.Checkpoint),
		approvals:   make(map[string]*approval.Request),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// SaveCheckpoint appends a new version capturing a deep copy of the state.
func (m *Store) SaveCheckpoint(_ context.Context, st *workflow.State) (*checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := st.ID.String()
	history := m.checkpoints[key]

	version := 1
	if n := len(history); n > 0 {
		version = history[n-1].Version + 1
	}

	cp := &checkpoint.Checkpoint{
		ID:         id.NewCheckpointID(),
		WorkflowID: st.ID,
		Version:    version,
		State:      st.Clone(),
		CreatedAt:  time.Now().UTC(),
	}
	m.checkpoints[key] = append(history, cp)
	return cp, nil
}

// LoadLatestCheckpoint returns the highest-version checkpoint.
func (m *Store) LoadLatestCheckpoint(_ context.Context, workflowID id.WorkflowID) (*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.checkpoints[workflowID.String()]
	if len(history) == 0 {
		return nil, conveyor.ErrCheckpointNotFound
	}
	return snapshot(history[len(history)-1]), nil
}

// LoadCheckpointVersion returns the exact version requested.
func (m *Store) LoadCheckpointVersion(_ context.Context, workflowID id.WorkflowID, version int) (*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cp := range m.checkpoints[workflowID.String()] {
		if cp.Version == version {
			return snapshot(cp), nil
		}
	}
	return nil, conveyor.ErrCheckpointNotFound
}

// CheckpointHistory returns all checkpoints in ascending version order.
func (m *Store) CheckpointHistory(_ context.Context, workflowID id.WorkflowID) ([]*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.checkpoints[workflowID.String()]
	out := make([]*checkpoint.Checkpoint, len(history))
	for i, cp := range history {
		out[i] = snapshot(cp)
	}
	return out, nil
}

// PruneCheckpoints removes all but the newest keep versions.
func (m *Store) PruneCheckpoints(_ context.Context, workflowID id.WorkflowID, keep int) error {
	if keep <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := workflowID.String()
	history := m.checkpoints[key]
	if len(history) > keep {
		m.checkpoints[key] = append([]*checkpoint.Checkpoint(nil), history[len(history)-keep:]...)
	}
	return nil
}

// snapshot returns an immutable copy of a checkpoint.
func snapshot(cp *checkpoint.Checkpoint) *checkpoint.Checkpoint {
	out := *cp
	out.State = cp.State.Clone()
	return &out
}

// ──────────────────────────────────────────────────
// Approval Store
// ──────────────────────────────────────────────────

// CreateApproval persists a new pending request. At most one pending
// request may exist per workflow.
func (m *Store) CreateApproval(_ context.Context, req *approval.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.approvals {
		if existing.WorkflowID == req.WorkflowID && existing.Status == approval.StatusPending {
			return conveyor.ErrApprovalPending
		}
	}

	cp := *req
	m.approvals[req.ID.String()] = &cp
	return nil
}

// GetApproval retrieves a request by id.
func (m *Store) GetApproval(_ context.Context, approvalID id.ApprovalID) (*approval.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.approvals[approvalID.String()]
	if !ok {
		return nil, conveyor.ErrApprovalNotFound
	}
	cp := *req
	return &cp, nil
}

// PendingApproval returns the workflow's pending request.
func (m *Store) PendingApproval(_ context.Context, workflowID id.WorkflowID) (*approval.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.approvals {
		if req.WorkflowID == workflowID && req.Status == approval.StatusPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, conveyor.ErrApprovalNotFound
}

// UpdateApproval persists changes to an existing request.
func (m *Store) UpdateApproval(_ context.Context, req *approval.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := req.ID.String()
	if _, ok := m.approvals[key]; !ok {
		return conveyor.ErrApprovalNotFound
	}
	cp := *req
	m.approvals[key] = &cp
	return nil
}

// ListApprovals returns all requests for a workflow, oldest first.
func (m *Store) ListApprovals(_ context.Context, workflowID id.WorkflowID) ([]*approval.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*approval.Request
	for _, req := range m.approvals {
		if req.WorkflowID == workflowID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// AppendEvent persists a new event.
func (m *Store) AppendEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	m.events = append(m.events, &cp)
	return nil
}

// ListEvents returns events for a workflow in append order.
func (m *Store) ListEvents(_ context.Context, workflowID id.WorkflowID, opts event.ListOpts) ([]*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*event.Event
	for _, evt := range m.events {
		if evt.WorkflowID != workflowID {
			continue
		}
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		cp := *evt
		matched = append(matched, &cp)
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
