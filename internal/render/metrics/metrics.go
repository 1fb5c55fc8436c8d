package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the render pipeline.
type Metrics struct {
	RendersServed prometheus.Counter
	Fallbacks     prometheus.Counter
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	BreakerOpens  prometheus.Counter
}

// New creates and registers the render metrics.
func New() *Metrics {
	return &Metrics{
		RendersServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_renders_served_total",
			Help: "Total number of render queries answered",
		}),
		Fallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_render_fallbacks_total",
			Help: "Total number of renders answered by the built-in fallback image",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_render_cache_hits_total",
			Help: "Total number of renders served from the cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_render_cache_misses_total",
			Help: "Total number of renders that missed the cache",
		}),
		BreakerOpens: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_render_breaker_opens_total",
			Help: "Times the renderer circuit breaker opened",
		}),
	}
}
