// Package observability provides an OpenTelemetry metrics extension for the
// worker. MetricsExtension implements the ext lifecycle hooks and records
// counters for jobs processed, attempts that raised, jobs quarantined and
// worker stops.
//
// For per-attempt tracing and metrics, see middleware.Tracing and
// middleware.Metrics.
package observability
