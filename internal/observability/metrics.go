package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Launch and job counters exposed on /metrics.
var (
	LaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siftx_launches_total",
		Help: "Trusted-launch validations by result.",
	}, []string{"result"})

	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siftx_jobs_submitted_total",
		Help: "Sifter jobs submitted through the web API.",
	})

	SifterRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siftx_sifter_runs_total",
		Help: "Completed sifter executions by outcome.",
	}, []string{"outcome"})
)
