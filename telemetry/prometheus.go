package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics adapts Prometheus client_golang collectors to the Metrics
// port. Counters and histograms are created lazily per metric name on first
// use and cached, since the port does not require callers to pre-declare
// label sets.
type PromMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPromMetrics constructs a Metrics recorder registered against reg. Pass
// prometheus.NewRegistry() to isolate collectors; nil also gets a fresh
// private registry, not the default global one.
func NewPromMetrics(reg *prometheus.Registry) *PromMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PromMetrics{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the underlying Prometheus registry so callers can wire an
// HTTP handler (promhttp.HandlerFor) for scraping.
func (m *PromMetrics) Registry() *prometheus.Registry { return m.registry }

func (m *PromMetrics) IncCounter(name string, value float64, labels ...string) {
	keys, vals := splitLabels(labels)
	m.mu.Lock()
	cv, ok := m.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: sanitize(name), Help: name}, keys)
		m.registry.MustRegister(cv)
		m.counters[name] = cv
	}
	m.mu.Unlock()
	cv.WithLabelValues(vals...).Add(value)
}

func (m *PromMetrics) RecordTimer(name string, d time.Duration, labels ...string) {
	keys, vals := splitLabels(labels)
	m.mu.Lock()
	hv, ok := m.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    sanitize(name),
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, keys)
		m.registry.MustRegister(hv)
		m.histograms[name] = hv
	}
	m.mu.Unlock()
	hv.WithLabelValues(vals...).Observe(d.Seconds())
}

// splitLabels treats labels as alternating key/value pairs so the number of
// label dimensions created matches callers' actual key set each time they
// happen to pass the same keys.
func splitLabels(labels []string) (keys, vals []string) {
	for i := 0; i+1 < len(labels); i += 2 {
		keys = append(keys, labels[i])
		vals = append(vals, labels[i+1])
	}
	return keys, vals
}

func sanitize(name string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(name)
}
