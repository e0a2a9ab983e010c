package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "llamactl"
	subsystem = "process"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "launches_total",
			Help:      "Number of llama-server processes launched.",
		}, []string{"model"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "launch_failures_total",
			Help:      "Number of failed launches by failure kind.",
		}, []string{"kind"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exits_total",
			Help:      "Number of observed process exits by final status.",
		}, []string{"model", "status"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "terminations_total",
			Help:      "Number of processes killed, by mode (single, cleanup, force).",
		}, []string{"mode"},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "running",
			Help:      "Processes currently holding a live handle.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between process states.",
		}, []string{"from", "to"},
	)
	portReallocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "port_reallocations_total",
			Help:      "Launches that moved off the requested port because it was busy.",
		},
	)
	versionFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_fallbacks_total",
			Help:      "Resolutions that fell back to the newest installed version.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, launchFailures, exits, terminations, running, stateTransitions, portReallocations, versionFallbacks}
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncLaunch(model string) {
	if regOK.Load() {
		launches.WithLabelValues(model).Inc()
	}
}

func IncLaunchFailure(kind string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(kind).Inc()
	}
}

func IncExit(model, status string) {
	if regOK.Load() {
		exits.WithLabelValues(model, status).Inc()
	}
}

func IncTermination(mode string) {
	if regOK.Load() {
		terminations.WithLabelValues(mode).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		running.Set(float64(n))
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func IncPortReallocation() {
	if regOK.Load() {
		portReallocations.Inc()
	}
}

func IncVersionFallback() {
	if regOK.Load() {
		versionFallbacks.Inc()
	}
}
