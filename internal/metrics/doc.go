// Package metrics records build metrics behind the Recorder interface.
//
// Components receive a Recorder through their constructor and default to
// NoopRecorder, so call sites never check for nil. PrometheusRecorder registers
// its collectors on a caller-supplied registry; the registry can then be
// exported to a node-exporter textfile after a one-shot build (WriteTextfile)
// or served over HTTP by the daemon (HTTPHandler).
package metrics
