// Package metrics records reconcile run metrics.
//
// Components receive a Recorder and default to NoopRecorder, so metrics stay
// optional. PrometheusRecorder keeps its own registry and is written out as a
// node-exporter textfile after a run.
package metrics

import "time"

// ResultLabel enumerates action outcomes for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
	ResultPlanned ResultLabel = "planned"
)

// Recorder defines observability hooks for reconcile runs.
type Recorder interface {
	ObserveAction(kind, action string, result ResultLabel)
	IncError(errorType string)
	ObserveReconcile(catalog string, d time.Duration, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveAction(string, string, ResultLabel)    {}
func (NoopRecorder) IncError(string)                              {}
func (NoopRecorder) ObserveReconcile(string, time.Duration, bool) {}
