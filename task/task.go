// Package task defines tasks, task results, and the stage-handler
// contract: the narrow interface through which the orchestration runtime
// consumes opaque external work (content generation, code analysis, test
// execution).
package task

import (
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/id"
)

// Status represents the outcome of a task execution.
type Status string

const (
	// StatusSuccess means the handler completed normally.
	StatusSuccess Status = "success"
	// StatusError means the handler failed.
	StatusError Status = "error"
	// StatusPartial means the handler produced usable output but did not
	// fully complete.
	StatusPartial Status = "partial"
	// StatusCancelled means the handler observed the cooperative
	// cancellation flag and stopped.
	StatusCancelled Status = "cancelled"
)

// Task is a unit of work addressed to a stage handler.
type Task struct {
	conveyor.Entity

	ID         id.TaskID     `json:"id"`
	HandlerID  string        `json:"handler_id"`
	WorkflowID id.WorkflowID `json:"workflow_id,omitempty"`
	Input      []byte        `json:"input,omitempty"`
	Priority   int           `json:"priority"`
	Timestamp  time.Time     `json:"timestamp"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// Metrics captures execution measurements attached to a Result.
type Metrics struct {
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	RetryDelay time.Duration `json:"retry_delay,omitempty"`
}

// Result is the outcome of executing a Task, delivered back through the
// result queue.
type Result struct {
	TaskID    id.TaskID `json:"task_id"`
	HandlerID string    `json:"handler_id"`
	Output    []byte    `json:"output,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Metrics   *Metrics  `json:"metrics,omitempty"`
}

// Failed reports whether the result is a failure.
func (r *Result) Failed() bool { return r.Status == StatusError }
