// Package metrics defines the Prometheus metrics exported by the catalog:
// ingest and preview counters, workflow transition counters, database query
// timings, and dispatch queue gauges.
package metrics
