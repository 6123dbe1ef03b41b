package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	domrepo "AltPull/internal/domain/repository"
)

const namespace = "altpull"

type observer interface {
	observe(labels map[string]string, value float64)
}

type counter struct {
	vec  *prometheus.CounterVec
	keys []string
}

func (c counter) observe(labels map[string]string, value float64) {
	c.vec.WithLabelValues(values(c.keys, labels)...).Add(value)
}

type histogram struct {
	vec  *prometheus.HistogramVec
	keys []string
}

func (h histogram) observe(labels map[string]string, value float64) {
	h.vec.WithLabelValues(values(h.keys, labels)...).Observe(value)
}

func values(keys []string, labels map[string]string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = labels[k]
	}
	return out
}

// Recorder implements domain.repository.Metrics using Prometheus.
// Each known event maps to one collector with a fixed label set; other events land in
// altpull_events_total.
type Recorder struct {
	byEvent map[string]observer
	other   *prometheus.CounterVec
}

// New registers collectors with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers collectors with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	r := &Recorder{byEvent: make(map[string]observer)}
	var collectors []prometheus.Collector

	addCounter := func(event, help string, keys ...string) {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: event, Help: help}, keys)
		collectors = append(collectors, vec)
		r.byEvent[event] = counter{vec: vec, keys: keys}
	}
	addHistogram := func(event, help string, buckets []float64, keys ...string) {
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: event, Help: help, Buckets: buckets}, keys)
		collectors = append(collectors, vec)
		r.byEvent[event] = histogram{vec: vec, keys: keys}
	}

	const (
		provider = domrepo.LabelProvider
		source   = domrepo.LabelSource
		symbol   = domrepo.LabelSymbol
		reason   = domrepo.LabelReason
	)
	addHistogram(domrepo.EventFetchDuration, "Provider fetch latency",
		[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}, provider, symbol)
	addCounter(domrepo.EventFetchSuccess, "Successful provider fetches", provider, symbol)
	addCounter(domrepo.EventFetchFailure, "Failed provider fetches by reason", provider, symbol, reason)
	addCounter(domrepo.EventRowsIngested, "Rows normalized from provider responses", provider, symbol)
	addCounter(domrepo.EventFallbackActivation, "Fallback chain advances past a failed provider", source, provider, reason)
	addCounter(domrepo.EventBreakerStateChange, "Circuit breaker transitions", provider, domrepo.LabelFrom, domrepo.LabelTo)
	addHistogram(domrepo.EventRateLimitWait, "Time spent waiting on the rate limiter",
		[]float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}, provider)
	addCounter(domrepo.EventRetryAttempt, "Provider call retries by reason", provider, reason)
	addHistogram(domrepo.EventFlowDuration, "ETL run duration",
		[]float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}, source, symbol)
	addCounter(domrepo.EventFlowSuccess, "Successful ETL runs", source, symbol)
	addCounter(domrepo.EventFlowFailure, "Failed ETL runs by stage", source, symbol, domrepo.LabelStage)
	addCounter(domrepo.EventPartitionWrite, "Partition writes by result", source, symbol, domrepo.LabelResult)

	r.other = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events without a dedicated collector",
	}, []string{"event"})
	collectors = append(collectors, r.other)

	reg.MustRegister(collectors...)
	return r
}

// Record implements domain.repository.Metrics.
func (r *Recorder) Record(event string, labels map[string]string, value float64) {
	if o, ok := r.byEvent[event]; ok {
		o.observe(labels, value)
		return
	}
	r.other.WithLabelValues(event).Add(value)
}
