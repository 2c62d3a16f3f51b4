// Package metrics exposes the pipeline counters in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attestd"

type Metrics struct {
	OracleCalls        *prometheus.CounterVec
	CandidatesProduced prometheus.Counter
	AdmissionRejected  *prometheus.CounterVec
	ResultsAccepted    prometheus.Counter
	PoolSize           prometheus.Gauge
	Height             prometheus.Gauge
}

// New registers the pipeline metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OracleCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by outcome.",
		}, []string{"outcome"}),
		CandidatesProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "candidates_produced_total",
			Help:      "Signed candidate results handed to admission.",
		}),
		AdmissionRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "rejected_total",
			Help:      "Candidate results rejected, by reason.",
		}, []string{"reason"}),
		ResultsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "accepted_total",
			Help:      "Verification results written to ledger state.",
		}),
		PoolSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "txpool",
			Name:      "size",
			Help:      "Candidate results waiting for inclusion.",
		}),
		Height: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "height",
			Help:      "Height of the last imported block.",
		}),
	}
}

// NewNop returns metrics registered nowhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
