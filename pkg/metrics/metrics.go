package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	TasksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmill_tasks_created_total",
			Help: "Total number of tasks created by type",
		},
		[]string{"task_type"},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmill_tasks_completed_total",
			Help: "Total number of tasks completed by type",
		},
		[]string{"task_type"},
	)

	TasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmill_tasks_failed_total",
			Help: "Total number of tasks that exhausted retries, by type and error kind",
		},
		[]string{"task_type", "error_kind"},
	)

	TaskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docmill_task_retries_total",
			Help: "Total number of conversion attempts sent back for retry",
		},
	)

	TasksRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docmill_tasks_recovered_total",
			Help: "Total number of in-flight tasks reset to pending after a restart",
		},
	)

	TaskProcessingSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docmill_task_processing_seconds",
			Help:    "End-to-end conversion time in seconds by task type",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"task_type"},
	)

	// Queue and state metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docmill_queue_depth",
			Help: "Current number of queued task ids by lane",
		},
		[]string{"lane"},
	)

	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docmill_tasks_by_status",
			Help: "Current number of stored tasks by status",
		},
		[]string{"status"},
	)

	// Callback metrics
	CallbackDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmill_callback_deliveries_total",
			Help: "Total number of callback deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// Workspace metrics
	WorkspaceBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docmill_workspace_bytes",
			Help: "Bytes held in task workspaces",
		},
	)

	WorkspacesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docmill_workspaces_active",
			Help: "Number of task workspaces currently on disk",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmill_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docmill_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksCreated)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TaskRetries)
	prometheus.MustRegister(TasksRecovered)
	prometheus.MustRegister(TaskProcessingSeconds)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TasksByStatus)
	prometheus.MustRegister(CallbackDeliveries)
	prometheus.MustRegister(WorkspaceBytes)
	prometheus.MustRegister(WorkspacesActive)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
