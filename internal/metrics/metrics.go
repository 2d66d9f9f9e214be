package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roostd",
			Subsystem: "agent",
			Name:      "operations_total",
			Help:      "Lifecycle verbs executed, by verb and result.",
		}, []string{"verb", "result"},
	)
	agentsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roostd",
			Subsystem: "agent",
			Name:      "loaded",
			Help:      "Agents currently registered with launchd.",
		},
	)
	agentsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roostd",
			Subsystem: "agent",
			Name:      "running",
			Help:      "Agents with a live process.",
		},
	)
	snapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "roostd",
			Subsystem: "reconciler",
			Name:      "snapshot_duration_seconds",
			Help:      "Time spent producing a full status snapshot.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	crashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roostd",
			Subsystem: "agent",
			Name:      "crashes_total",
			Help:      "Running-to-stopped transitions with a non-zero exit status.",
		}, []string{"label"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{operations, agentsLoaded, agentsRunning, snapshotDuration, crashes}
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

// Handler returns an http.Handler serving the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers; no-ops until Register has been called.

func IncOperation(verb, result string) {
	if regOK.Load() {
		operations.WithLabelValues(verb, result).Inc()
	}
}

func SetLoaded(n int) {
	if regOK.Load() {
		agentsLoaded.Set(float64(n))
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		agentsRunning.Set(float64(n))
	}
}

func ObserveSnapshotDuration(seconds float64) {
	if regOK.Load() {
		snapshotDuration.Observe(seconds)
	}
}

func IncCrash(label string) {
	if regOK.Load() {
		crashes.WithLabelValues(label).Inc()
	}
}
