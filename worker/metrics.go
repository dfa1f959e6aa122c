package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fltrain_worker_registrations_total",
			Help: "Total number of train configs registered",
		},
		[]string{"worker_id", "optimizer", "loss"},
	)

	activeHandles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fltrain_worker_active_handles",
			Help: "Number of train config handles currently held",
		},
		[]string{"worker_id"},
	)

	fitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fltrain_worker_fit_total",
			Help: "Total number of completed fit calls",
		},
		[]string{"worker_id", "dataset", "optimizer"},
	)

	fitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fltrain_worker_fit_duration_seconds",
			Help:    "Fit call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"worker_id", "dataset"},
	)

	fitLoss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fltrain_worker_fit_loss",
			Help: "Loss reported by the most recent fit call",
		},
		[]string{"worker_id", "dataset"},
	)

	// SessionsActive tracks open coordinator websocket sessions.
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fltrain_worker_sessions_active",
			Help: "Number of open coordinator sessions",
		},
		[]string{"worker_id"},
	)
)
