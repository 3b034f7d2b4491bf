package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsDequeuedTotal, jobsRecoveredTotal) }

var jobsDequeuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "jobs_dequeued_total",
		Help: "Job messages handed to workers.",
	},
)

var jobsRecoveredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "jobs_recovered_total",
		Help: "Unacked job messages pushed back to the queue on startup.",
	},
)

func IncDequeued() { jobsDequeuedTotal.Inc() }

func AddRecovered(n int) { jobsRecoveredTotal.Add(float64(n)) }
