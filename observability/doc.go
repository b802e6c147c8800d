// Package observability provides an OpenTelemetry metrics extension
// for Accord. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for workflow and task outcomes, retry pressure,
// ledger growth, block sealing, and compliance checkpoint verdicts.
//
// For per-task tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
