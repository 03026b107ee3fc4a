// Package metrics exports cut-tree evaluation diagnostics as Prometheus
// counters. A Collector is safe to share between worker trees.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cutflow"

// #region collector
// Collector implements cuttree.Observer.
type Collector struct {
	// Records counts records processed by the runner or the RPC service.
	Records prometheus.Counter
	// Evaluations counts tree evaluations. Labels: syst ("nominal" for none)
	Evaluations *prometheus.CounterVec
	// Passes counts cuts passing an evaluation. Labels: cut, syst
	Passes *prometheus.CounterVec
	// Fallbacks counts cuts passed through without a decision source. Labels: cut, syst
	Fallbacks *prometheus.CounterVec
}

// New registers the collector's counters on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		Records: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed",
		}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "evaluations_total",
			Help:      "Cut tree evaluations by systematic context",
		}, []string{"syst"}),
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "cut_passes_total",
			Help:      "Cuts passing an evaluation",
		}, []string{"cut", "syst"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "fallbacks_total",
			Help:      "Cuts passed through because no decision source was set",
		}, []string{"cut", "syst"}),
	}
}

// RecordProcessed increments the record counter.
func (c *Collector) RecordProcessed() { c.Records.Inc() }

// Evaluated implements cuttree.Observer.
func (c *Collector) Evaluated(syst string) {
	c.Evaluations.WithLabelValues(label(syst)).Inc()
}

// Passed implements cuttree.Observer.
func (c *Collector) Passed(cut, syst string) {
	c.Passes.WithLabelValues(cut, label(syst)).Inc()
}

// Fallback implements cuttree.Observer.
func (c *Collector) Fallback(cut, syst string) {
	c.Fallbacks.WithLabelValues(cut, label(syst)).Inc()
}

func label(syst string) string {
	if syst == "" {
		return "nominal"
	}
	return syst
}

// #endregion collector
