// Package breaker provides per-handler circuit breakers and the shared
// registry that keys them by handler id. A breaker isolates calls to a
// failing stage handler: after a threshold of consecutive failures it
// rejects calls immediately until an open-timeout elapses, then admits a
// single trial call to probe for recovery.
package breaker

import "time"

// State represents the breaker's lifecycle state.
type State string

const (
	// StateClosed means calls flow through normally.
	StateClosed State = "closed"
	// StateOpen means calls fast-fail without invoking the handler.
	StateOpen State = "open"
	// StateHalfOpen means a trial call is probing for recovery.
	StateHalfOpen State = "half_open"
)

// Config holds circuit breaker thresholds and timings.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the
	// closed state that trips the breaker open.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int

	// OpenTimeout is how long the breaker stays open before admitting
	// a trial call.
	OpenTimeout time.Duration

	// MonitoringPeriod is the rolling window for the closed-state
	// failure counter. Failures older than the window do not count
	// toward the threshold.
	MonitoringPeriod time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		MonitoringPeriod: time.Minute,
	}
}

// Snapshot is a point-in-time copy of a breaker's counters, safe to hand
// to health checks and observability hooks.
type Snapshot struct {
	HandlerID     string     `json:"handler_id"`
	State         State      `json:"state"`
	FailureCount  int        `json:"failure_count"`
	SuccessCount  int        `json:"success_count"`
	TotalRequests int64      `json:"total_requests"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// StateChange describes a breaker transition, delivered to the registered
// listener for observability.
type StateChange struct {
	HandlerID string
	From      State
	To        State
	At        time.Time
}

// Listener receives breaker state transitions. It is called synchronously
// after the transition commits, outside the breaker's lock.
type Listener func(StateChange)
