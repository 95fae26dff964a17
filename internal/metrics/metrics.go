// Package metrics wires the backplane's cross-cutting Prometheus
// instrumentation: per-provider health gauges and circuit-breaker
// open/close events. internal/refresh registers its own token-refresh
// counters directly against the same registry; this package covers
// everything else named in §4.7/§6 that doesn't already own a
// registration point.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nodrake/backplane/internal/breaker"
	"github.com/nodrake/backplane/internal/health"
)

// healthStatusValue maps a health.Status to the numeric gauge value
// Prometheus consumers expect: higher is worse.
func healthStatusValue(s health.Status) float64 {
	switch s {
	case health.StatusHealthy:
		return 0
	case health.StatusDegraded:
		return 1
	case health.StatusUnhealthy:
		return 2
	default:
		return -1
	}
}

// providerHealthCollector is a prometheus.Collector that reads
// health.Monitor's current state at scrape time rather than polling on
// its own schedule, matching the pull model Prometheus is designed for.
type providerHealthCollector struct {
	monitor             *health.Monitor
	statusDesc          *prometheus.Desc
	consecutiveFailDesc *prometheus.Desc
}

func newProviderHealthCollector(monitor *health.Monitor) *providerHealthCollector {
	return &providerHealthCollector{
		monitor: monitor,
		statusDesc: prometheus.NewDesc(
			"backplane_provider_health_status",
			"Current provider health: 0=healthy, 1=degraded, 2=unhealthy, -1=unknown.",
			[]string{"provider"}, nil),
		consecutiveFailDesc: prometheus.NewDesc(
			"backplane_provider_consecutive_failures",
			"Consecutive health-check failures observed for a provider.",
			[]string{"provider"}, nil),
	}
}

func (c *providerHealthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.statusDesc
	ch <- c.consecutiveFailDesc
}

func (c *providerHealthCollector) Collect(ch chan<- prometheus.Metric) {
	for platform, ph := range c.monitor.All() {
		ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue, healthStatusValue(ph.Status), string(platform))
		ch <- prometheus.MustNewConstMetric(c.consecutiveFailDesc, prometheus.GaugeValue, float64(ph.ConsecutiveFailures), string(platform))
	}
}

// BreakerEvents counts circuit-breaker state transitions per key.
type BreakerEvents struct {
	Opened *prometheus.CounterVec
	Closed *prometheus.CounterVec
}

// Register wires provider-health gauges (sourced from monitor) and
// circuit-breaker open/close counters (sourced from registry) into reg.
func Register(reg prometheus.Registerer, monitor *health.Monitor, registry *breaker.Registry) *BreakerEvents {
	if monitor != nil {
		reg.MustRegister(newProviderHealthCollector(monitor))
	}

	events := &BreakerEvents{
		Opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backplane_circuit_breaker_opened_total",
			Help: "Count of circuit breaker trips (Closed/HalfOpen -> Open), by key.",
		}, []string{"key"}),
		Closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backplane_circuit_breaker_closed_total",
			Help: "Count of circuit breaker resets (Open/HalfOpen -> Closed), by key.",
		}, []string{"key"}),
	}
	reg.MustRegister(events.Opened, events.Closed)

	if registry != nil {
		registry.OnStateChange(
			func(key string) { events.Opened.WithLabelValues(key).Inc() },
			func(key string) { events.Closed.WithLabelValues(key).Inc() },
		)
	}

	return events
}
