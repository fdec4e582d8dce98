package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry          *prom.Registry
	actions           *prom.CounterVec
	errors            *prom.CounterVec
	reconcileDuration *prom.HistogramVec
	reconcileOutcome  *prom.CounterVec
	lastSuccess       *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers the metrics on reg, or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.actions = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "converge",
		Name:      "resource_actions_total",
		Help:      "Resource actions by kind, action and result",
	}, []string{"kind", "action", "result"})
	pr.errors = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "converge",
		Name:      "reconcile_errors_total",
		Help:      "Reconciliation errors by type",
	}, []string{"type"})
	pr.reconcileDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "converge",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconcile runs",
		Buckets:   prom.DefBuckets,
	}, []string{"catalog"})
	pr.reconcileOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "converge",
		Name:      "reconcile_runs_total",
		Help:      "Reconcile runs by catalog and outcome",
	}, []string{"catalog", "outcome"})
	pr.lastSuccess = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "converge",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful reconcile",
	}, []string{"catalog"})
	reg.MustRegister(pr.actions, pr.errors, pr.reconcileDuration, pr.reconcileOutcome, pr.lastSuccess)
	return pr
}

func (p *PrometheusRecorder) ObserveAction(kind, action string, result ResultLabel) {
	if p == nil || p.actions == nil {
		return
	}
	p.actions.WithLabelValues(kind, action, string(result)).Inc()
}

func (p *PrometheusRecorder) IncError(errorType string) {
	if p == nil || p.errors == nil {
		return
	}
	p.errors.WithLabelValues(errorType).Inc()
}

func (p *PrometheusRecorder) ObserveReconcile(catalog string, d time.Duration, success bool) {
	if p == nil || p.reconcileDuration == nil {
		return
	}
	p.reconcileDuration.WithLabelValues(catalog).Observe(d.Seconds())
	outcome := "failed"
	if success {
		outcome = "success"
		p.lastSuccess.WithLabelValues(catalog).SetToCurrentTime()
	}
	p.reconcileOutcome.WithLabelValues(catalog, outcome).Inc()
}

// Registry returns the registry the metrics are registered on
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// creating the parent directory when needed
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
