package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiPromptTokens,
		aiCallsLatencyMs,
		aiPromptRejected,
	)
}

var (
	aiPromptTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_prompt_tokens",
			Help: "Sum of prompt tokens sent per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "Generation call latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 80000},
		},
		[]string{"provider", "operation", "success"},
	)

	aiPromptRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_prompt_rejected",
			Help: "Prompts rejected before sending because they exceed the token budget.",
		},
		[]string{"provider", "model"},
	)
)

func PromptRejected(provider, model string) {
	aiPromptRejected.WithLabelValues(norm(provider), norm(model)).Inc()
}

func AddPromptTokens(provider, model string, tokens int) {
	aiPromptTokens.WithLabelValues(norm(provider), norm(model)).Add(float64(tokens))
}

func ObserveGeneration(provider, operation string, latencyMs int64, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(operation), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
