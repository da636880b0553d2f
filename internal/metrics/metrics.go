package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: cache lookups by namespace and result (hit | miss | error).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genforge_cache_lookups_total",
			Help: "Cache lookups by namespace and result.",
		},
		[]string{"namespace", "result"},
	)

	// Counter: cache writes by namespace.
	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genforge_cache_writes_total",
			Help: "Cache writes by namespace.",
		},
		[]string{"namespace"},
	)

	// Counter: cache entries dropped as unusable (corrupt | stale).
	CacheDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genforge_cache_discarded_total",
			Help: "Cache entries treated as misses because they were corrupt or stale.",
		},
		[]string{"namespace", "reason"},
	)

	// Counter: generation attempts by generator and outcome.
	GenerationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genforge_generation_attempts_total",
			Help: "Model generation attempts by generator and outcome.",
		},
		[]string{"generator", "outcome"},
	)

	// Counter: generation loops that ran out of attempts.
	RetriesExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genforge_retries_exhausted_total",
			Help: "Generation loops that exhausted every attempt.",
		},
		[]string{"generator"},
	)

	// Counter: deterministic fallbacks served instead of model output.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genforge_fallbacks_total",
			Help: "Synthetic fallback results served after retries were exhausted.",
		},
		[]string{"generator"},
	)

	// Histogram: time a job waits in a single-worker audio queue.
	QueueWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genforge_queue_wait_seconds",
			Help:    "Time audio jobs spend waiting for their generator's worker.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"queue"},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 2.5, 5, 15, 30, 60, 120},
		},
		[]string{"path", "method", "status_code"},
	)

	registerOnce sync.Once
)

// Register is called once in main() to register metrics.
// Collectors work unregistered, so tests never need to call it.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLookupsTotal,
			CacheWritesTotal,
			CacheDiscardedTotal,
			GenerationAttemptsTotal,
			RetriesExhaustedTotal,
			FallbacksTotal,
			QueueWaitSeconds,
			GatewayLatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
// Paths are labelled by their chi route pattern so /audio/{filename} does
// not create one series per file.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		GatewayLatencySeconds.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
