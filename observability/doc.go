// Package observability provides an OpenTelemetry-based metrics
// extension. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for task enqueue, completion, failure, and
// cancellation, workflow outcomes, suspensions, and breaker trips,
// plus duration histograms for tasks and workflows.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
