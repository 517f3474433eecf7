// Package retry provides the classified retry executor used underneath
// every stage-handler invocation. Transient failures (rate-limit, timeout,
// network-reset, 5xx) are retried with backoff; permanent failures (auth,
// validation, 4xx) abort immediately without consuming the remaining
// attempts.
package retry

import (
	"context"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/backoff"
)

// DefaultMaxAttempts is used when Config.MaxAttempts is zero.
const DefaultMaxAttempts = 3

// Config controls the retry executor.
type Config struct {
	// MaxAttempts is the total number of call attempts, including the
	// first. Zero means DefaultMaxAttempts.
	MaxAttempts int

	// Backoff computes the delay before each retry. Nil means
	// backoff.DefaultStrategy() (exponential with 30% jitter).
	Backoff backoff.Strategy

	// OnRetry, if set, is invoked before each retry sleep with the
	// upcoming attempt number (2-indexed: the attempt about to run)
	// and the error that caused the retry.
	OnRetry func(attempt int, err error)
}

// Result reports the outcome of a retried call.
type Result struct {
	// Attempts is the number of call attempts actually made.
	Attempts int

	// TotalDelay is the cumulative backoff delay incurred.
	TotalDelay time.Duration

	// Err is nil on success; otherwise the last error observed.
	Err error
}

// Success reports whether the call eventually succeeded.
func (r Result) Success() bool { return r.Err == nil }

// Do runs fn up to cfg.MaxAttempts times, sleeping between attempts
// according to the backoff strategy. Classification happens after every
// failure: a permanent error returns immediately with the attempts used
// so far. Context cancellation during a backoff sleep aborts the loop
// with the context error wrapped into the result.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) Result {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	strategy := cfg.Backoff
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		err := fn(ctx)
		if err == nil {
			res.Err = nil
			return res
		}
		res.Err = err

		if Classify(err) == conveyor.ClassPermanent {
			return res
		}
		if attempt == maxAttempts {
			return res
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		delay := strategy.Delay(attempt)
		res.TotalDelay += delay

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		}
	}
	return res
}
