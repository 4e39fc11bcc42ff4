package forecast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forecastsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_forecasts_served_total",
		Help: "Total number of forecast requests served.",
	})
	fallbacksUsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_fallbacks_total",
		Help: "Total number of forecasts served from the naive baseline.",
	})
	overridesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_overrides_applied_total",
		Help: "Total number of forecast days replaced by a manager override.",
	})
	overridesSet = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_overrides_set_total",
		Help: "Total number of override writes accepted.",
	})
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_forecast_cache_hits_total",
		Help: "Total number of forecast responses served from cache.",
	})
	retrainCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_retrain_cycles_total",
		Help: "Total number of completed retrain cycles.",
	})
	retrainFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_retrain_failures_total",
		Help: "Total number of per-series retrain failures.",
	})
	modelsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffcast_models_activated_total",
		Help: "Total number of models trained and activated.",
	})
	retrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "staffcast_retrain_cycle_duration_seconds",
		Help:    "Duration of a full retrain cycle.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})
)
