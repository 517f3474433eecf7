// Package conveyor provides a multi-stage delivery pipeline orchestration
// runtime for Go. It coordinates opaque stage handlers (content generation,
// code analysis, test execution) through a workflow state machine with
// conditional routing, rework loops, human approval gates, and
// checkpoint-based pause/resume across process restarts.
//
// Conveyor is designed as a library, not a service. Import it, register
// stage handlers, define a pipeline graph, and start workflow runs. Fault
// isolation (per-handler circuit breakers and classified retry with
// backoff) sits underneath every handler invocation, invisible to the
// routing layer except as a final exhausted-retries failure.
//
// # Quick Start
//
//	o, err := conveyor.New(
//	    conveyor.WithStore(memStore),
//	    conveyor.WithQueue(memQueue),
//	)
//
// # Architecture
//
// Conveyor follows a composable store pattern where each persistence
// concern (checkpoint, approval, event) defines its own store interface.
// A single backend (memory, Redis, SQLite) implements all of them. Task
// dispatch goes through a separate queue abstraction with in-process and
// Redis backends.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package conveyor
