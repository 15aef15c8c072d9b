// Package metrics provides Prometheus metrics for the hotplug daemon:
// load, demanded and online cores, bounds, tick and transition outcomes,
// and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tutu-network/hotplug/internal/domain"
)

// ─── Load & Cores ───────────────────────────────────────────────────────────

// Load tracks the smoothed system-wide load in runnable threads.
var Load = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "hotplug",
	Name:      "load_threads",
	Help:      "Smoothed number of runnable threads across online cores.",
})

// NrRun tracks the number of cores the load justifies.
var NrRun = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "hotplug",
	Name:      "nr_run",
	Help:      "Number of cores justified by the current load.",
})

// OnlineCores tracks the number of online cores seen by the last tick.
var OnlineCores = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "hotplug",
	Name:      "online_cores",
	Help:      "Number of online cores.",
})

// BoundsCores tracks the configured minimum and maximum online cores.
var BoundsCores = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "hotplug",
	Name:      "bounds_cores",
	Help:      "Configured online core bounds (bound=min|max).",
}, []string{"bound"})

// ControllerRunning is 1 while the controller is running.
var ControllerRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "hotplug",
	Name:      "controller_running",
	Help:      "Controller state (1=running, 0=disabled).",
})

// ─── Ticks ──────────────────────────────────────────────────────────────────

// Ticks counts sampling ticks by the action they decided.
var Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hotplug",
	Name:      "ticks_total",
	Help:      "Total sampling ticks by decided action.",
}, []string{"action"})

// TickDuration tracks how long one sampling pass takes.
var TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "hotplug",
	Name:      "tick_duration_seconds",
	Help:      "Duration of one sampling tick.",
	Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
})

// SkippedSamples counts online cores that produced no average in a tick.
var SkippedSamples = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "hotplug",
	Name:      "skipped_samples_total",
	Help:      "Online cores skipped by the sampler (baseline, read error or time anomaly).",
})

// ─── Transitions ────────────────────────────────────────────────────────────

// Transitions counts attempted core transitions by action and result.
var Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hotplug",
	Name:      "transitions_total",
	Help:      "Total attempted core transitions (result=ok|error).",
}, []string{"action", "result"})

// TransitionDuration tracks how long the platform takes to switch a core.
var TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "hotplug",
	Name:      "transition_duration_seconds",
	Help:      "Time spent switching one core.",
	Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
}, []string{"action"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "hotplug",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// ─── Observer ───────────────────────────────────────────────────────────────

// Recorder feeds controller ticks and transitions into the metrics above.
type Recorder struct{}

// ObserveTick records one tick.
func (Recorder) ObserveTick(r domain.TickReport) {
	Load.Set(domain.LoadThreads(r.Load))
	NrRun.Set(float64(r.NrRun))
	OnlineCores.Set(float64(r.Online))
	Ticks.WithLabelValues(r.Action.String()).Inc()
	TickDuration.Observe(r.Duration.Seconds())
	if r.Skipped > 0 {
		SkippedSamples.Add(float64(r.Skipped))
	}
}

// ObserveEvent records one transition.
func (Recorder) ObserveEvent(e domain.HotplugEvent) {
	result := "ok"
	if !e.Succeeded() {
		result = "error"
	}
	Transitions.WithLabelValues(e.Action.String(), result).Inc()
	TransitionDuration.WithLabelValues(e.Action.String()).Observe(e.Duration.Seconds())
}

// SetBounds publishes the configured bounds.
func SetBounds(b domain.Bounds) {
	BoundsCores.WithLabelValues("min").Set(float64(b.Min))
	BoundsCores.WithLabelValues("max").Set(float64(b.Max))
}

// SetRunning publishes the controller state.
func SetRunning(running bool) {
	if running {
		ControllerRunning.Set(1)
	} else {
		ControllerRunning.Set(0)
	}
}
