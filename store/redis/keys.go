package redis

import "fmt"

// Redis key naming conventions for orchestration data.
// All keys are prefixed with "conveyor:" to avoid collisions.

const keyPrefix = "conveyor:"

// ── Checkpoint keys ──

// checkpointKey returns the key for one checkpoint snapshot:
// conveyor:checkpoint:{workflowID}:{version}
func checkpointKey(workflowID string, version int) string {
	return fmt.Sprintf("%scheckpoint:%s:%d", keyPrefix, workflowID, version)
}

// checkpointIndexKey returns the Sorted Set key indexing a workflow's
// checkpoint versions (score = version).
func checkpointIndexKey(workflowID string) string {
	return keyPrefix + "checkpoint_idx:" + workflowID
}

// ── Approval keys ──

// approvalKey returns the key for an approval request: conveyor:approval:{id}
func approvalKey(id string) string { return keyPrefix + "approval:" + id }

// approvalIndexKey returns the Set key tracking a workflow's approval IDs.
func approvalIndexKey(workflowID string) string {
	return keyPrefix + "approval_idx:" + workflowID
}

// approvalPendingKey points at a workflow's single pending approval ID.
func approvalPendingKey(workflowID string) string {
	return keyPrefix + "approval_pending:" + workflowID
}

// ── Event keys ──

// eventsKey returns the List key holding a workflow's event log.
func eventsKey(workflowID string) string { return keyPrefix + "events:" + workflowID }
