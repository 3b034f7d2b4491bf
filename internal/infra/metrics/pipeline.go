package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(stageLatencyMs, sagaCompensationsTotal) }

var stageLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_stage_latency_ms",
		Help:    "Pipeline stage latency distribution in milliseconds.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	},
	[]string{"pipeline", "stage", "success"},
)

var sagaCompensationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "saga_compensations_total",
		Help: "Aggregate write compensations, by whether the rollback succeeded.",
	},
	[]string{"result"}, // 'compensated', 'incomplete'
)

func ObserveStage(pipeline, stage string, latencyMs int64, success bool) {
	stageLatencyMs.WithLabelValues(norm(pipeline), norm(stage), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncCompensation(compensated bool) {
	result := "compensated"
	if !compensated {
		result = "incomplete"
	}
	sagaCompensationsTotal.WithLabelValues(result).Inc()
}
