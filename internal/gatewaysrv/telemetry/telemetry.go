// Package telemetry exposes the gateway's Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagate_calls_total",
		Help: "Gateway calls by kind and outcome.",
	}, []string{"kind", "outcome"})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datagate_call_duration_seconds",
		Help:    "Gateway call latency by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	promotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagate_registry_promotions_total",
		Help: "Registry pointer flips, promotions and rollbacks alike.",
	})

	activeGeneration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datagate_registry_active_generation",
		Help: "1 for the active generation, 0 for the other.",
	}, []string{"generation"})
)

// RecordCall counts one gateway call and observes its latency.
func RecordCall(kind, outcome string, d time.Duration) {
	callsTotal.WithLabelValues(kind, outcome).Inc()
	callDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordPromotion counts a pointer flip and marks the active generation.
func RecordPromotion(generation string) {
	promotionsTotal.Inc()
	for _, g := range []string{"blue", "green"} {
		v := 0.0
		if g == generation {
			v = 1.0
		}
		activeGeneration.WithLabelValues(g).Set(v)
	}
}
