// Package observability exposes the garden's Prometheus surface. The
// collector satisfies the world's Metrics interface, so the tick loop
// records into it without knowing about Prometheus.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	gatherer prometheus.Gatherer

	TickDuration    prometheus.Histogram
	Actors          *prometheus.GaugeVec
	Clients         prometheus.Gauge
	FactoryInFlight prometheus.Gauge
	Events          prometheus.Counter
}

// NewCollector registers the garden metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "garden_tick_duration_seconds",
		Help:    "Wall time spent advancing one simulation tick.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "garden_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	actors := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "garden_actors",
		Help: "Live actors on the grid, labeled by kind.",
	}, []string{"kind"})
	actors, err = registerGaugeVec(reg, actors, "garden_actors")
	if err != nil {
		return nil, err
	}

	clients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "garden_clients",
		Help: "Attached observer sessions.",
	}), "garden_clients")
	if err != nil {
		return nil, err
	}

	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "garden_factory_in_flight",
		Help: "Flower generation requests awaiting results.",
	}), "garden_factory_in_flight")
	if err != nil {
		return nil, err
	}

	events, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "garden_events_total",
		Help: "Narrative events emitted since start.",
	}), "garden_events_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		TickDuration:    tickDuration,
		Actors:          actors,
		Clients:         clients,
		FactoryInFlight: inFlight,
		Events:          events,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTickDuration(seconds float64) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(seconds)
}

func (c *Collector) SetPopulation(kind string, count int) {
	if c == nil || c.Actors == nil {
		return
	}
	c.Actors.WithLabelValues(kind).Set(float64(count))
}

func (c *Collector) SetClients(n int) {
	if c == nil || c.Clients == nil {
		return
	}
	c.Clients.Set(float64(n))
}

func (c *Collector) SetFactoryInFlight(n int) {
	if c == nil || c.FactoryInFlight == nil {
		return
	}
	c.FactoryInFlight.Set(float64(n))
}

func (c *Collector) AddEvents(n int) {
	if c == nil || c.Events == nil {
		return
	}
	c.Events.Add(float64(n))
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
