// Package observability exposes gateway metrics in Prometheus format.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lingogate/internal/core"
)

// Metrics is the gateway's Prometheus instrumentation. A nil *Metrics is
// valid and records nothing, so call sites never branch on whether metrics
// are enabled.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	cacheEvents     *prometheus.CounterVec
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lingogate",
			Name:      "requests_total",
			Help:      "Provider requests by task and outcome.",
		}, []string{"provider", "task", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lingogate",
			Name:      "request_duration_seconds",
			Help:      "Provider request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "task"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lingogate",
			Name:      "tokens_total",
			Help:      "Tokens consumed by direction.",
		}, []string{"provider", "direction"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lingogate",
			Name:      "cache_events_total",
			Help:      "Cache hits and misses by cache name.",
		}, []string{"cache", "result"}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.tokensTotal, m.cacheEvents)
	return m
}

// ObserveRequest records one provider attempt.
func (m *Metrics) ObserveRequest(provider core.Provider, task, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(provider.String(), task, outcome).Inc()
	m.requestDuration.WithLabelValues(provider.String(), task).Observe(elapsed.Seconds())
}

// ObserveTokens records token consumption for one successful response.
func (m *Metrics) ObserveTokens(provider core.Provider, usage core.Usage) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues(provider.String(), "prompt").Add(float64(usage.PromptTokens))
	m.tokensTotal.WithLabelValues(provider.String(), "completion").Add(float64(usage.CompletionTokens))
}

// ObserveCache records one cache lookup result.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheEvents.WithLabelValues(cache, result).Inc()
}
