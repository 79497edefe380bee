package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fosched_jobs_total",
			Help: "Number of jobs tracked by the queue, by state",
		},
		[]string{"state"},
	)

	JobsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fosched_jobs_resolved_total",
			Help: "Jobs resolved to a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	// Agent metrics
	AgentsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fosched_agents_live",
			Help: "Number of live agent processes",
		},
	)

	AgentsSpawned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fosched_agents_spawned_total",
			Help: "Agent processes spawned, by agent type",
		},
		[]string{"type"},
	)

	LaunchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fosched_launch_errors_total",
			Help: "Failed launch attempts, by reason",
		},
		[]string{"reason"},
	)

	// Host metrics
	HostAgents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fosched_host_agents",
			Help: "Running agents per host",
		},
		[]string{"host"},
	)

	HostCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fosched_host_capacity",
			Help: "Configured agent capacity per host",
		},
		[]string{"host"},
	)

	// Event loop metrics
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fosched_events_processed_total",
			Help: "Events dispatched by the loop, by kind",
		},
		[]string{"kind"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fosched_tick_duration_seconds",
			Help:    "Duration of scheduler tick callbacks",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulerLockout = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fosched_scheduler_lockout",
			Help: "Whether the scheduler is in exclusive-job lockout (1 = locked out)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		JobsTotal,
		JobsResolved,
		AgentsLive,
		AgentsSpawned,
		LaunchErrors,
		HostAgents,
		HostCapacity,
		EventsProcessed,
		TickDuration,
		SchedulerLockout,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
