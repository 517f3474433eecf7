// Package engine implements the workflow engine: sequential traversal of
// a stage graph with conditional routing, bounded rework loops, assessor-
// driven reflection, and human-in-the-loop interrupt points.
//
// A single workflow instance advances one stage at a time. Many instances
// run concurrently and independently; the only shared mutable resource is
// the circuit-breaker registry, keyed by handler id. After each completed
// stage the engine saves a checkpoint, so a run can be resumed after a
// restart or rolled back to any earlier version.
//
// Interrupt points suspend the run before a named stage: the engine
// checkpoints the state, creates a pending approval request, and returns
// with status awaiting_approval. Resume continues traversal once a
// reviewer decides. When approval persistence is unavailable the gate
// fails open: the run is auto-approved and the bypass is logged and
// recorded as an event.
package engine
