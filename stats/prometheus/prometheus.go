// Package prometheus provides a Prometheus-backed stats collector for the
// coordinator's metrics.
package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/stratacache"
)

// Collector implements stratacache.Collector on a Prometheus registry.
// Metrics are created lazily on first use.
type Collector struct {
	registry prometheus.Registerer

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

var _ stratacache.Collector = (*Collector)(nil)

// New creates a collector. If registry is nil, prometheus.DefaultRegisterer
// is used.
func New(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Collector{
		registry:   registry,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

func (c *Collector) IncCounter(name string, delta int64) {
	c.getOrCreateCounter(name).Add(float64(delta))
}

func (c *Collector) SetGauge(name string, value int64) {
	c.getOrCreateGauge(name).Set(float64(value))
}

func (c *Collector) ObserveHistogram(name string, value float64) {
	c.getOrCreateHistogram(name).Observe(value)
}

func (c *Collector) getOrCreateCounter(name string) prometheus.Counter {
	c.mu.RLock()
	m, ok := c.counters[name]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok = c.counters[name]; ok {
		return m
	}
	m = prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: name})
	if existing, ok := register(c.registry, m); ok {
		if cnt, ok := existing.(prometheus.Counter); ok {
			m = cnt
		}
	}
	c.counters[name] = m
	return m
}

func (c *Collector) getOrCreateGauge(name string) prometheus.Gauge {
	c.mu.RLock()
	m, ok := c.gauges[name]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok = c.gauges[name]; ok {
		return m
	}
	m = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: name})
	if existing, ok := register(c.registry, m); ok {
		if g, ok := existing.(prometheus.Gauge); ok {
			m = g
		}
	}
	c.gauges[name] = m
	return m
}

func (c *Collector) getOrCreateHistogram(name string) prometheus.Histogram {
	c.mu.RLock()
	m, ok := c.histograms[name]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok = c.histograms[name]; ok {
		return m
	}
	m = prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: name})
	if existing, ok := register(c.registry, m); ok {
		if h, ok := existing.(prometheus.Histogram); ok {
			m = h
		}
	}
	c.histograms[name] = m
	return m
}

// register attempts registration and, when the metric already exists,
// returns the previously registered collector instead.
func register(r prometheus.Registerer, m prometheus.Collector) (prometheus.Collector, bool) {
	if err := r.Register(m); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector, true
		}
	}
	return nil, false
}
