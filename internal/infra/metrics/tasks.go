package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(tasksProcessedTotal, taskClaimsTotal, taskStoreFallbacksTotal) }

var tasksProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tasks_processed_total",
		Help: "Total number of claimed tasks that reached a terminal status, by type and status.",
	},
	[]string{"type", "status"}, // 'completed', 'failed'
)

var taskClaimsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "task_claims_total",
		Help: "Claim attempts by outcome.",
	},
	[]string{"result"}, // 'claimed', 'not_claimed', 'not_found', 'error'
)

var taskStoreFallbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "task_store_fallbacks_total",
		Help: "Task store operations retried on the privileged path, by operation and result.",
	},
	[]string{"op", "result"},
)

func IncTaskProcessed(taskType, status string) {
	tasksProcessedTotal.WithLabelValues(norm(taskType), norm(status)).Inc()
}

func IncClaim(result string) {
	taskClaimsTotal.WithLabelValues(norm(result)).Inc()
}

func IncStoreFallback(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	taskStoreFallbacksTotal.WithLabelValues(norm(op), result).Inc()
}
