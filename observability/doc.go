// Package observability provides an OpenTelemetry-based metrics
// extension for Pilot. The MetricsExtension implements lifecycle hooks
// to record system-wide counters for run, step, repair, and obstacle
// events.
//
// For per-step tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
