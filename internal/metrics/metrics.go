package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	sessionStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmate",
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Number of successful session process spawns.",
		}, []string{"region"},
	)
	sessionStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmate",
			Subsystem: "session",
			Name:      "stops_total",
			Help:      "Number of sessions stopped (user or exit).",
		}, []string{"region"},
	)
	sessionRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmate",
			Subsystem: "session",
			Name:      "restarts_total",
			Help:      "Number of session restarts.",
		}, []string{"region"},
	)
	sessionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmate",
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Number of sessions that ended in error.",
		}, []string{"region"},
	)
	runningSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tmate",
			Subsystem: "session",
			Name:      "running",
			Help:      "Current number of running sessions.",
		},
	)
	logRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmate",
			Subsystem: "log",
			Name:      "records_total",
			Help:      "Log records appended, by level.",
		}, []string{"level"},
	)
	observers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tmate",
			Subsystem: "broadcast",
			Name:      "observers",
			Help:      "Currently connected observers.",
		},
	)
	droppedObservers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tmate",
			Subsystem: "broadcast",
			Name:      "dropped_observers_total",
			Help:      "Observers evicted for falling behind.",
		},
	)
)

// Register registers all metrics with the provided registerer. Safe to call
// multiple times; already-registered collectors are ignored.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{sessionStarts, sessionStops, sessionRestarts, sessionErrors, runningSessions, logRecords, observers, droppedObservers}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(region string) {
	if regOK.Load() {
		sessionStarts.WithLabelValues(region).Inc()
	}
}

func IncStop(region string) {
	if regOK.Load() {
		sessionStops.WithLabelValues(region).Inc()
	}
}

func IncRestart(region string) {
	if regOK.Load() {
		sessionRestarts.WithLabelValues(region).Inc()
	}
}

func IncError(region string) {
	if regOK.Load() {
		sessionErrors.WithLabelValues(region).Inc()
	}
}

func SetRunningSessions(n int) {
	if regOK.Load() {
		runningSessions.Set(float64(n))
	}
}

func IncLogRecord(level string) {
	if regOK.Load() {
		logRecords.WithLabelValues(level).Inc()
	}
}

func SetObservers(n int) {
	if regOK.Load() {
		observers.Set(float64(n))
	}
}

func IncDroppedObserver() {
	if regOK.Load() {
		droppedObservers.Inc()
	}
}
