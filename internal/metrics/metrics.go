// Package metrics is the engine's metrics sink, backed by a Prometheus
// registry.
//
// The label schema is a bounded, closed set: only {operation, broker,
// exchange, strategy, outcome} are accepted label keys. Any other key is
// logged once per metric and removed from the call, which is still recorded
// with the remaining labels, so no new, unbounded metric series is created.
// Label values are not checked.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var allowedLabelKeys = map[string]struct{}{
	"operation": {},
	"broker":    {},
	"exchange":  {},
	"strategy":  {},
	"outcome":   {},
}

var labelOrder = []string{"operation", "broker", "exchange", "strategy", "outcome"}

// promName maps the dotted metric names the rest of the engine uses
// (trading.orders.placed) onto prometheus's [a-zA-Z_:][a-zA-Z0-9_:]* rule;
// registering a dotted name would panic MustRegister.
func promName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// Registry is the production ports.MetricsSink backed by prometheus.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec

	rejectedOnce sync.Map // metric name -> struct{}, used to log the rejection once
}

// NewRegistry creates an empty registry. Metrics are lazily registered on
// first use, keyed by name, always with the full bounded label set so every
// series for a given metric name carries the same dimensions.
func NewRegistry() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Gatherer exposes the underlying prometheus.Registry for a /metrics handler
// in the excluded HTTP layer.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) sanitize(name string, labels map[string]string) map[string]string {
	for k := range labels {
		if _, ok := allowedLabelKeys[k]; !ok {
			if _, logged := r.rejectedOnce.LoadOrStore(name+"|"+k, struct{}{}); !logged {
				log.Warn().Str("metric", name).Str("label", k).Msg("rejected unbounded metric label, dropping")
			}
			delete(labels, k)
		}
	}
	return labels
}

func values(labels map[string]string) []string {
	out := make([]string, len(labelOrder))
	for i, k := range labelOrder {
		v, ok := labels[k]
		if !ok {
			v = "unset"
		}
		out[i] = v
	}
	return out
}

func (r *Registry) counterVec(name string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: promName(name), Help: name}, labelOrder)
		r.reg.MustRegister(cv)
		r.counters[name] = cv
	}
	return cv
}

func (r *Registry) histogramVec(name string) *prometheus.HistogramVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	hv, ok := r.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promName(name),
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, labelOrder)
		r.reg.MustRegister(hv)
		r.histograms[name] = hv
	}
	return hv
}

func (r *Registry) gaugeVec(name string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	gv, ok := r.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promName(name), Help: name}, labelOrder)
		r.reg.MustRegister(gv)
		r.gauges[name] = gv
	}
	return gv
}

func (r *Registry) IncCounter(name string, labels map[string]string) {
	labels = r.sanitize(name, labels)
	r.counterVec(name).WithLabelValues(values(labels)...).Inc()
}

func (r *Registry) ObserveTimer(name string, labels map[string]string, d time.Duration) {
	labels = r.sanitize(name, labels)
	r.histogramVec(name).WithLabelValues(values(labels)...).Observe(d.Seconds())
}

func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	labels = r.sanitize(name, labels)
	r.gaugeVec(name).WithLabelValues(values(labels)...).Set(value)
}

func (r *Registry) AddGauge(name string, labels map[string]string, delta float64) {
	labels = r.sanitize(name, labels)
	r.gaugeVec(name).WithLabelValues(values(labels)...).Add(delta)
}
