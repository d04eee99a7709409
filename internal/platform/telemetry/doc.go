// Package telemetry groups the engine's operational observability.
//
// Tracing is configured by platform/otel. Prometheus collectors live in
// telemetry/metrics and are shared by every Manager in the process, so
// multiple instances (tests included) report into the same series.
package telemetry
