package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/conveyordev/conveyor"
)

// statusCoder is implemented by errors that carry an HTTP-style status
// code (common for REST-backed stage handlers).
type statusCoder interface {
	StatusCode() int
}

// retryableSubstrings are matched case-insensitively against the error
// text when no typed classification is available. They cover the usual
// spellings of rate-limit, timeout, and network-reset failures.
var retryableSubstrings = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"econnreset",
	"etimedout",
	"temporarily unavailable",
	"service unavailable",
	"internal server error",
	"bad gateway",
}

// permanentSubstrings mark failures that will not succeed on retry.
var permanentSubstrings = []string{
	"unauthorized",
	"unauthenticated",
	"forbidden",
	"invalid api key",
	"invalid_api_key",
	"validation",
	"invalid input",
	"bad request",
	"not found",
}

// Classify determines whether an error is worth retrying.
//
// Typed classifications (conveyor.TransientError, conveyor.PermanentError,
// status codes) win over message inspection. Circuit-open fast-fails are
// permanent from the executor's point of view: retrying before the breaker
// half-opens only burns attempts.
func Classify(err error) conveyor.ErrorClass {
	if err == nil {
		return conveyor.ClassPermanent
	}

	var transient *conveyor.TransientError
	if errors.As(err, &transient) {
		return conveyor.ClassTransient
	}
	var permanent *conveyor.PermanentError
	if errors.As(err, &permanent) {
		return conveyor.ClassPermanent
	}
	var open *conveyor.CircuitOpenError
	if errors.As(err, &open) {
		return conveyor.ClassPermanent
	}

	if errors.Is(err, context.Canceled) {
		return conveyor.ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return conveyor.ClassTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.StatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return conveyor.ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, s := range permanentSubstrings {
		if strings.Contains(msg, s) {
			return conveyor.ClassPermanent
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return conveyor.ClassTransient
		}
	}

	// Unknown failures default to transient so a flaky dependency gets
	// the benefit of the configured attempts.
	return conveyor.ClassTransient
}

// classifyStatus maps an HTTP status code to an error class.
// 429 and every 5xx are retryable; all other 4xx are permanent.
func classifyStatus(code int) conveyor.ErrorClass {
	switch {
	case code == 429:
		return conveyor.ClassTransient
	case code >= 500:
		return conveyor.ClassTransient
	case code >= 400:
		return conveyor.ClassPermanent
	default:
		return conveyor.ClassTransient
	}
}
