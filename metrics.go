package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// botMetrics wraps the Prometheus collectors. All methods accept a nil
// receiver so components can run without metrics.
type botMetrics struct {
	cycles          *prometheus.CounterVec
	cycleLatency    prometheus.Histogram
	resourceFailure *prometheus.CounterVec
	skippedTicks    prometheus.Counter
	refreshedAt     prometheus.Gauge
	commands        *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

func newBotMetrics(reg prometheus.Registerer) *botMetrics {
	m := &botMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nuhbot_refresh_cycles_total",
			Help: "Refresh cycles by outcome (committed or partial).",
		}, []string{"outcome"}),
		cycleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nuhbot_refresh_cycle_seconds",
			Help:    "Wall time of a refresh cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		resourceFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nuhbot_resource_fetch_failures_total",
			Help: "Resource fetch failures by resource and kind.",
		}, []string{"resource", "kind"}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nuhbot_refresh_ticks_skipped_total",
			Help: "Refresh ticks dropped because a cycle was still running.",
		}),
		refreshedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nuhbot_cache_refreshed_timestamp_seconds",
			Help: "Unix time of the active snapshot's last successful refresh.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nuhbot_commands_total",
			Help: "Chat commands handled, by command.",
		}, []string{"command"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nuhbot_commands_rate_limited_total",
			Help: "Chat commands dropped by the per-author rate limit.",
		}),
	}
	reg.MustRegister(
		m.cycles,
		m.cycleLatency,
		m.resourceFailure,
		m.skippedTicks,
		m.refreshedAt,
		m.commands,
		m.rateLimited,
	)
	return m
}

func (m *botMetrics) ObserveCycle(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleLatency.Observe(took.Seconds())
}

func (m *botMetrics) ObserveResourceFailure(name resourceName, kind string) {
	if m == nil {
		return
	}
	m.resourceFailure.WithLabelValues(string(name), kind).Inc()
}

func (m *botMetrics) ObserveSkippedTick() {
	if m == nil {
		return
	}
	m.skippedTicks.Inc()
}

func (m *botMetrics) SetRefreshedAt(t time.Time) {
	if m == nil || t.IsZero() {
		return
	}
	m.refreshedAt.Set(float64(t.UnixMilli()) / 1000)
}

func (m *botMetrics) ObserveCommand(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

func (m *botMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
