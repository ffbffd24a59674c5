// Package prometheus exposes poaAuth metrics as a Prometheus collector.
//
// [NewPrometheusExporter] wraps an [poaAuth.Engine]. The exporter can be
// registered on any registry, or mounted directly through [PrometheusExporter.Handler].
// Counter names are prefixed poa_auth_*_total; the single histogram is
// poa_auth_authenticate_latency_seconds. Histogram sums are estimated from
// bucket bounds because the engine keeps only bucket counts.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers choose the registry.
//   - Mutate engine state.
package prometheus
