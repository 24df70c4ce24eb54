package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/switchboard/internal/bus"
)

const namespace = "switchboard"

// Prometheus exports dispatch activity on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	confidence  *prometheus.HistogramVec
	cacheHits   *prometheus.CounterVec
	cacheClears prometheus.Counter
	cleared     prometheus.Counter
	breakers    *prometheus.CounterVec
	recalled    prometheus.Counter
}

// NewPrometheus creates the dispatch collectors on a private registry that
// also carries the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Dispatched queries by handler and outcome.",
		}, []string{"handler", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Handler processing time for uncached dispatches.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"handler"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_confidence",
			Help:      "Confidence of successful responses.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"handler"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Responses served from a handler cache.",
		}, []string{"handler"}),
		cacheClears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_clears_total",
			Help:      "Calls to clear every handler cache.",
		}),
		cleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_entries_cleared_total",
			Help:      "Cache entries removed by clears.",
		}),
		breakers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by handler and new state.",
		}, []string{"handler", "state"}),
		recalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_recalled_total",
			Help:      "Answers served from the persistent response store.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.requests, p.latency, p.confidence, p.cacheHits,
		p.cacheClears, p.cleared, p.breakers, p.recalled,
	)
	return p
}

// Registry returns the registry the collectors live on.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Observe records a bus event.
func (p *Prometheus) Observe(e bus.Event) {
	switch e.Type {
	case bus.EventDispatchCompleted:
		p.requests.WithLabelValues(e.Handler, "ok").Inc()
		p.confidence.WithLabelValues(e.Handler).Observe(e.Confidence)
		if e.Cached {
			p.cacheHits.WithLabelValues(e.Handler).Inc()
		} else {
			p.latency.WithLabelValues(e.Handler).Observe(e.LatencyMs / 1000)
		}
	case bus.EventDispatchFailed:
		p.requests.WithLabelValues(e.Handler, "error").Inc()
	case bus.EventDispatchNoMatch:
		p.requests.WithLabelValues(e.Handler, "no_match").Inc()
	case bus.EventCacheCleared:
		p.cacheClears.Inc()
		p.cleared.Add(float64(e.Cleared))
	case bus.EventBreakerChanged:
		p.breakers.WithLabelValues(e.Handler, e.To).Inc()
	case bus.EventResponseRecalled:
		p.recalled.Inc()
	}
}
