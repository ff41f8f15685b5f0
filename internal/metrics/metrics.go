package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venuecal",
		Name:      "generate_total",
		Help:      "Recurrence expansions by pattern",
	}, []string{"pattern"})

	generateCappedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venuecal",
		Name:      "generate_capped_total",
		Help:      "Recurrence expansions truncated by the safety cap",
	}, []string{"pattern"})

	generatedInstances = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "venuecal",
		Name:      "generated_instances",
		Help:      "Instances produced per expansion",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	materializeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venuecal",
		Name:      "materialize_total",
		Help:      "Virtual/real conversions by operation and outcome",
	}, []string{"op", "outcome"}) // op=convert|restore outcome=success|conflict|error

	orphanedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "venuecal",
		Name:      "orphaned_events",
		Help:      "Materialized events whose slot is no longer generated (last sweep)",
	})

	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venuecal",
		Name:      "sweep_runs_total",
		Help:      "Orphan sweeps by outcome",
	}, []string{"outcome"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venuecal",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status class",
	}, []string{"route", "method", "status"})
)

func RecordGenerate(pattern string, instances int, capped bool) {
	generateTotal.WithLabelValues(pattern).Inc()
	generatedInstances.Observe(float64(instances))
	if capped {
		generateCappedTotal.WithLabelValues(pattern).Inc()
	}
}

func IncMaterialize(op, outcome string) { materializeTotal.WithLabelValues(op, outcome).Inc() }

func RecordSweep(orphans int, err error) {
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return
	}
	sweepRunsTotal.WithLabelValues("success").Inc()
	orphanedEvents.Set(float64(orphans))
}

func IncHTTPRequest(route, method, status string) {
	httpRequestsTotal.WithLabelValues(route, method, status).Inc()
}
