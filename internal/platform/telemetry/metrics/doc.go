// Package metrics provides Prometheus collectors for the social sync engine.
//
// # Metric Categories
//
//   - Events: published events by type
//   - Fetches: batch fetch count, outcome and latency by kind
//   - Frames: DoWork latency and ingest queue depth per local user
//   - Push: reconnects of the real-time channel
//
// Collectors register on the default registry through promauto and are
// exposed in Prometheus format by the runtime's /metrics endpoint.
package metrics
