package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsWorldMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveTickDuration(0.002)
	c.SetPopulation("FLOWER", 60)
	c.SetPopulation("INSECT", 14)
	c.SetClients(2)
	c.SetFactoryInFlight(3)
	c.AddEvents(5)

	if got := testutil.ToFloat64(c.Actors.WithLabelValues("FLOWER")); got != 60 {
		t.Fatalf("garden_actors{kind=FLOWER} = %v, want 60", got)
	}
	if got := testutil.ToFloat64(c.Clients); got != 2 {
		t.Fatalf("garden_clients = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.FactoryInFlight); got != 3 {
		t.Fatalf("garden_factory_in_flight = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Events); got != 5 {
		t.Fatalf("garden_events_total = %v, want 5", got)
	}
}

func TestCollectorReregistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	a.SetClients(1)
	b.SetClients(4)
	if got := testutil.ToFloat64(a.Clients); got != 4 {
		t.Fatalf("re-registered gauge diverged: %v", got)
	}
}

func TestMetricsHandlerExposesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveTickDuration(0.001)
	c.SetPopulation("BIRD", 1)
	c.SetClients(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"garden_tick_duration_seconds",
		"garden_actors",
		"garden_clients",
		"garden_factory_in_flight",
		"garden_events_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}
