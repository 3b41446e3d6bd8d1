// Package sinks implements concrete progress consumers: structured logging and
// Prometheus collectors that can be exported to a node_exporter textfile.
// Each sink satisfies the progress.Sink interface.
package sinks
