package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal counts terminal task outcomes
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_tasks_total",
			Help: "Total number of task outcomes by status",
		},
		[]string{"agent_type", "task_type", "status"},
	)

	// TaskDuration tracks wall-clock time from start to terminal outcome
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductor_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"agent_type", "task_type"},
	)

	// TasksInFlight tracks tasks currently running
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_tasks_in_flight",
			Help: "Number of tasks currently executing",
		},
	)

	// RetryAttempts counts failed attempts by error category
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_retry_attempts_total",
			Help: "Total number of failed operation attempts",
		},
		[]string{"category"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conductor_circuit_breaker_state",
			Help: "Circuit breaker state per scope (0 closed, 1 half-open, 2 open)",
		},
		[]string{"scope"},
	)

	// CircuitBreakerTrips counts transitions into the open state
	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_circuit_breaker_trips_total",
			Help: "Total number of times a circuit breaker opened",
		},
		[]string{"scope"},
	)

	// CircuitRejections counts attempts refused by an open breaker
	CircuitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_circuit_rejections_total",
			Help: "Total number of attempts rejected by an open circuit breaker",
		},
		[]string{"scope"},
	)

	// Checkpoints tracks checkpoints held in the ring buffer
	Checkpoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_checkpoints",
			Help: "Number of checkpoints currently retained",
		},
	)

	// Rollbacks counts automatic rollbacks by result
	Rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_rollbacks_total",
			Help: "Total number of automatic rollbacks",
		},
		[]string{"result"},
	)

	// LessonsUpserted counts lesson writes from analysis passes
	LessonsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_lessons_upserted_total",
			Help: "Total number of lessons upserted",
		},
		[]string{"type", "created"},
	)

	// Recommendations counts recommendations served to the driver
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_recommendations_total",
			Help: "Total number of recommendations served",
		},
		[]string{"type"},
	)

	// AgentSwitches counts automatic agent substitutions
	AgentSwitches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_agent_switches_total",
			Help: "Total number of automatic agent switches",
		},
	)

	// AnalysisDuration tracks the duration of pattern analysis passes
	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conductor_analysis_duration_seconds",
			Help:    "Pattern analysis pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EventsEmitted counts events by type and sink result
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_events_emitted_total",
			Help: "Total number of events emitted",
		},
		[]string{"type", "result"},
	)

	// DBConnectionPoolUsage is open connections as a percentage of the pool limit
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// HTTPRequests counts operator API requests by route pattern
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_http_requests_total",
			Help: "Total number of operator API requests",
		},
		[]string{"method", "route", "code"},
	)

	// HTTPDuration tracks operator API latency by route pattern
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductor_http_request_duration_seconds",
			Help:    "Operator API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
