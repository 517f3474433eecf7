// Package backoff provides pluggable retry delay strategies for task and
// stage-handler execution. All strategies are safe for concurrent use
// (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential multiplies the delay by Multiplier each attempt.
// Delay = min(Initial * Multiplier^(attempt-1), Max).
type Exponential struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// NewExponential creates an exponential backoff strategy with the given
// multiplier. A multiplier <= 1 is treated as 2.
func NewExponential(initial time.Duration, multiplier float64, maxDelay time.Duration) *Exponential {
	if multiplier <= 1 {
		multiplier = 2
	}
	return &Exponential{Initial: initial, Multiplier: multiplier, Max: maxDelay}
}

// Delay returns Initial * Multiplier^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(e.Multiplier, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Jitter decorator
// ──────────────────────────────────────────────────

// Jitter wraps another strategy and adds a random fraction of the base
// delay on top of it. With Fraction 0.3 the result is a random value in
// [base, base*1.3], capped at Max. Proportional jitter keeps the ordering
// guarantee (each delay >= the previous base delay) while still spreading
// out simultaneous retries.
type Jitter struct {
	Base     Strategy
	Fraction float64
	Max      time.Duration
}

// DefaultJitterFraction is the jitter applied by the default strategy:
// up to 30% of the base delay.
const DefaultJitterFraction = 0.3

// NewJitter decorates base with proportional jitter. A non-positive
// fraction falls back to DefaultJitterFraction.
func NewJitter(base Strategy, fraction float64, maxDelay time.Duration) *Jitter {
	if fraction <= 0 {
		fraction = DefaultJitterFraction
	}
	return &Jitter{Base: base, Fraction: fraction, Max: maxDelay}
}

// Delay returns base + rand[0, base*Fraction], capped at Max.
func (j *Jitter) Delay(attempt int) time.Duration {
	base := float64(j.Base.Delay(attempt))
	d := time.Duration(base + rand.Float64()*base*j.Fraction) //nolint:gosec // jitter intentionally uses non-crypto rand
	if j.Max > 0 && d > j.Max {
		return j.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff used by the retry executor:
// exponential (1s initial, x2) with 30% jitter, capped at 30s.
func DefaultStrategy() Strategy {
	return NewJitter(NewExponential(time.Second, 2, 30*time.Second), DefaultJitterFraction, 30*time.Second)
}
