package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hangar_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_deployments_total",
			Help: "Total number of deploy-path runs by outcome",
		},
		[]string{"outcome"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hangar_deployment_duration_seconds",
			Help:    "Full deploy-path duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	RolledBackDeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_deployments_rolled_back_total",
			Help: "Total number of deploy-path runs that rolled back, by failing stage",
		},
		[]string{"stage"},
	)

	// Blue-green update metrics
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_updates_total",
			Help: "Total number of blue-green updates by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	UpdateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hangar_update_duration_seconds",
			Help:    "Blue-green update duration in seconds by kind",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	// Reconciler metrics
	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_reconciliation_cycles_total",
			Help: "Total number of reconciler cycles completed by worker",
		},
		[]string{"worker"},
	)

	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hangar_reconciliation_duration_seconds",
			Help:    "Time taken per reconciler cycle in seconds, by worker",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	// Event plane metrics
	EventsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_events_emitted_total",
			Help: "Total number of events emitted by channel class and event type",
		},
		[]string{"channel", "event_type"},
	)

	EventsLaggedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_events_lagged_total",
			Help: "Total number of times a subscriber was detected lagging by channel class",
		},
		[]string{"channel"},
	)

	ActiveProjectChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hangar_active_project_channels",
			Help: "Number of project channels currently open",
		},
	)

	ActiveCreationChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hangar_active_creation_channels",
			Help: "Number of creation channels currently open",
		},
	)
)

func init() {
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(RolledBackDeploymentsTotal)
	prometheus.MustRegister(UpdatesTotal)
	prometheus.MustRegister(UpdateDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(EventsEmittedTotal)
	prometheus.MustRegister(EventsLaggedTotal)
	prometheus.MustRegister(ActiveProjectChannels)
	prometheus.MustRegister(ActiveCreationChannels)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
