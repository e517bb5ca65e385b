package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medcast_backend_calls_total",
			Help: "Total prediction backend API calls",
		},
		[]string{"endpoint", "status"},
	)

	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medcast_backend_latency_seconds",
			Help:    "Prediction backend call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	PredictionsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medcast_predictions_synced_total",
			Help: "Total predictions stored by the sync job",
		},
		[]string{"period_type"},
	)

	PredictionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medcast_predictions_rejected_total",
			Help: "Total malformed predictions dropped before storage",
		},
		[]string{"reason"},
	)

	DuplicatesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medcast_duplicate_predictions_total",
			Help: "Total duplicate predictions discarded during reconciliation",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medcast_api_requests_total",
			Help: "Total HTTP API requests",
		},
		[]string{"route", "status"},
	)

	APIRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medcast_api_request_latency_seconds",
			Help:    "HTTP API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medcast_exports_total",
			Help: "Total export files produced",
		},
		[]string{"format", "mode", "sink"},
	)

	ChartRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medcast_chart_renders_total",
			Help: "Chart PNG requests by cache result",
		},
		[]string{"cache"},
	)
)
