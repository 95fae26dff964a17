package metrics

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nodrake/backplane/internal/breaker"
	"github.com/nodrake/backplane/internal/health"
	"github.com/nodrake/backplane/internal/models"
)

func TestRegisterExposesProviderHealthGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	monitor := health.NewMonitor(health.DefaultConfig())
	monitor.RegisterChecker(models.PlatformSpotify, func(ctx context.Context, client *http.Client) (*health.RateLimitInfo, error) {
		return nil, nil
	})
	monitor.CheckAll(context.Background())

	Register(reg, monitor, nil)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "backplane_provider_health_status" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected backplane_provider_health_status to be registered")
	}
}

func TestRegisterWiresBreakerEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Timeout: 0})

	events := Register(reg, nil, registry)
	if events == nil {
		t.Fatal("expected non-nil BreakerEvents")
	}

	registry.RecordFailure("spotify")

	var metric dto.Metric
	if err := events.Opened.WithLabelValues("spotify").Write(&metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if metric.GetCounter().GetValue() != 1 {
		t.Fatalf("expected opened counter to be 1, got %v", metric.GetCounter().GetValue())
	}
}

func TestHealthStatusValueMapping(t *testing.T) {
	cases := map[health.Status]float64{
		health.StatusHealthy:   0,
		health.StatusDegraded:  1,
		health.StatusUnhealthy: 2,
		health.StatusUnknown:   -1,
	}
	for status, want := range cases {
		if got := healthStatusValue(status); got != want {
			t.Errorf("healthStatusValue(%v) = %v, want %v", status, got, want)
		}
	}
}

func TestBreakerEventNamesAreWellFormed(t *testing.T) {
	reg := prometheus.NewRegistry()
	events := Register(reg, nil, nil)
	if !strings.Contains(events.Opened.WithLabelValues("x").Desc().String(), "backplane_circuit_breaker_opened_total") {
		t.Fatal("expected opened counter to carry the backplane_circuit_breaker_opened_total name")
	}
}
