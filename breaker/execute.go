package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/conveyordev/conveyor"
)

// Breaker is a circuit breaker for a single handler id. One instance is
// shared by every concurrent task targeting that handler; all methods are
// safe for concurrent use.
type Breaker struct {
	handlerID string
	config    Config
	listener  Listener
	now       func() time.Time

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	totalRequests int64
	windowStart   time.Time
	lastFailureAt time.Time
	lastSuccessAt time.Time
	nextAttemptAt time.Time
	trialInFlight bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithListener sets the state-change listener.
func WithListener(l Listener) BreakerOption {
	return func(b *Breaker) { b.listener = l }
}

// New creates a closed Breaker for the given handler id.
func New(handlerID string, config Config, opts ...BreakerOption) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultConfig().OpenTimeout
	}
	b := &Breaker{
		handlerID: handlerID,
		config:    config,
		state:     StateClosed,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.windowStart = b.now()
	return b
}

// HandlerID returns the handler id this breaker guards.
func (b *Breaker) HandlerID() string { return b.handlerID }

// Execute runs fn through the breaker. In the open state it returns a
// *conveyor.CircuitOpenError carrying the next attempt time without
// invoking fn. In the half-open state only one trial call is admitted at
// a time; concurrent callers fast-fail as if the breaker were open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, change, err := b.allow()
	if change != nil {
		b.emit(*change)
	}
	if err != nil {
		return err
	}

	callErr := fn(ctx)

	if callErr != nil {
		change = b.recordFailure(trial)
	} else {
		change = b.recordSuccess(trial)
	}
	if change != nil {
		b.emit(*change)
	}
	return callErr
}

// allow decides whether a call may proceed. It returns whether the call
// is a half-open trial, an optional transition to report, and a fast-fail
// error when the call is rejected.
func (b *Breaker) allow() (trial bool, change *StateChange, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch b.state {
	case StateClosed:
		return false, nil, nil

	case StateOpen:
		if now.Before(b.nextAttemptAt) {
			return false, nil, &conveyor.CircuitOpenError{
				HandlerID:     b.handlerID,
				NextAttemptAt: b.nextAttemptAt,
			}
		}
		// Open timeout elapsed: half-open and admit this call as the trial.
		change = b.transition(StateHalfOpen, now)
		b.trialInFlight = true
		return true, change, nil

	case StateHalfOpen:
		if b.trialInFlight {
			return false, nil, &conveyor.CircuitOpenError{
				HandlerID:     b.handlerID,
				NextAttemptAt: b.nextAttemptAt,
			}
		}
		b.trialInFlight = true
		return true, nil, nil
	}

	return false, nil, nil
}

// recordSuccess updates counters after a successful call.
func (b *Breaker) recordSuccess(trial bool) *StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.totalRequests++
	b.lastSuccessAt = now
	if trial {
		b.trialInFlight = false
	}

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.reset(now)
			return b.transition(StateClosed, now)
		}
	case StateOpen:
		// A success landing after the breaker re-opened (late trial
		// from a previous half-open cycle). Counters already reset.
	}
	return nil
}

// recordFailure updates counters after a failed call.
func (b *Breaker) recordFailure(trial bool) *StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.totalRequests++
	b.lastFailureAt = now
	if trial {
		b.trialInFlight = false
	}

	switch b.state {
	case StateClosed:
		// Failures outside the monitoring window don't accumulate.
		if b.config.MonitoringPeriod > 0 && now.Sub(b.windowStart) > b.config.MonitoringPeriod {
			b.failureCount = 0
			b.windowStart = now
		}
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.trip(now)
			return b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		// Any half-open failure reopens immediately.
		b.trip(now)
		return b.transition(StateOpen, now)
	case StateOpen:
	}
	return nil
}

// trip resets counters and schedules the next trial attempt.
// Caller holds the lock.
func (b *Breaker) trip(now time.Time) {
	b.failureCount = 0
	b.successCount = 0
	b.nextAttemptAt = now.Add(b.config.OpenTimeout)
}

// reset clears all counters for a return to the closed state.
// Caller holds the lock.
func (b *Breaker) reset(now time.Time) {
	b.failureCount = 0
	b.successCount = 0
	b.windowStart = now
	b.nextAttemptAt = time.Time{}
}

// transition changes state and returns the change record.
// Caller holds the lock.
func (b *Breaker) transition(to State, at time.Time) *StateChange {
	from := b.state
	b.state = to
	return &StateChange{HandlerID: b.handlerID, From: from, To: to, At: at}
}

func (b *Breaker) emit(change StateChange) {
	if b.listener != nil {
		b.listener(change)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a point-in-time copy of the breaker's counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		HandlerID:     b.handlerID,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		TotalRequests: b.totalRequests,
	}
	if !b.lastFailureAt.IsZero() {
		t := b.lastFailureAt
		s.LastFailureAt = &t
	}
	if !b.lastSuccessAt.IsZero() {
		t := b.lastSuccessAt
		s.LastSuccessAt = &t
	}
	if !b.nextAttemptAt.IsZero() {
		t := b.nextAttemptAt
		s.NextAttemptAt = &t
	}
	return s
}
