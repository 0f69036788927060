package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: source (rest, kafka, tcp, file)
	MeasurementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spcguard",
		Name:      "measurements_total",
		Help:      "Measurements accepted for evaluation",
	}, []string{"source"})

	// Labels: source
	MeasurementsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spcguard",
		Name:      "measurements_dropped_total",
		Help:      "Measurements dropped because the engine channel was full",
	}, []string{"source"})

	// Labels: source
	MeasurementsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spcguard",
		Name:      "measurements_rejected_total",
		Help:      "Records that could not be parsed or normalized",
	}, []string{"source"})

	// Labels: kind (run_rule_violation, out_of_spec, cpk_warning, cpk_critical)
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spcguard",
		Name:      "alerts_created_total",
		Help:      "Alerts committed to the alert store",
	}, []string{"kind"})

	// Labels: status (acknowledged, resolved, dismissed)
	AlertTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spcguard",
		Name:      "alert_transitions_total",
		Help:      "Successful alert status transitions",
	}, []string{"status"})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spcguard",
		Name:      "evaluation_duration_seconds",
		Help:      "Time to recompute limits, rules and capability for one measurement",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})
)
