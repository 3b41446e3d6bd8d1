// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that the crawl orchestrator uses to report per-district progress.
// It batches events on a background goroutine and fans them out to pluggable
// sinks such as structured logs or Prometheus metrics.
package progress
