package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "steward_tasks",
			Help: "Number of stored tasks by state",
		},
		[]string{"state"},
	)

	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_tasks_submitted_total",
			Help: "Total number of tasks submitted by kind",
		},
		[]string{"kind"},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_tasks_completed_total",
			Help: "Total number of finished tasks by kind and state",
		},
		[]string{"kind", "state"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_task_duration_seconds",
			Help:    "Task execution duration in seconds by kind",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind"},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "steward_queue_depth",
			Help: "Number of tasks waiting in the pending queue",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Remote execution metrics
	SSHConnectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "steward_ssh_connect_duration_seconds",
			Help:    "Time taken to establish SSH sessions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SSHConnectFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_ssh_connect_failures_total",
			Help: "Total number of failed SSH connection attempts",
		},
	)

	// Reporter metrics
	ReportsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_reports_sent_total",
			Help: "Total number of completion emails by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		TasksByState,
		TasksSubmitted,
		TasksCompleted,
		TaskDuration,
		QueueDepth,
		APIRequestsTotal,
		APIRequestDuration,
		SSHConnectDuration,
		SSHConnectFailures,
		ReportsSent,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observations
type Timer struct {
	start time.Time
}

// NewTimer creates a timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in the given histogram vec
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
