// Package metrics exposes relaybot's Prometheus metrics. A nil *Collector is
// valid and records nothing, which is how metrics are disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaybot"

// Collector owns a private registry and the pipeline metrics.
type Collector struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	blocked         *prometheus.CounterVec
	backendLatency  prometheus.Histogram
	backendFailures prometheus.Counter
	postFailures    prometheus.Counter
	inFlight        prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates a collector with Go runtime and process metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events handled, by outcome",
		}, []string{"outcome"}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_total",
			Help:      "Messages refused by the content classifier, by reason",
		}, []string{"reason"}),
		backendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Answer service call duration",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 200},
		}),
		backendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Answer service calls that ended in the fallback reply",
		}),
		postFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_failures_total",
			Help:      "Replies that could not be posted to Slack",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_in_flight",
			Help:      "Events currently being processed",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by handler and status code",
		}, []string{"handler", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration, by handler",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.events,
		c.blocked,
		c.backendLatency,
		c.backendFailures,
		c.postFailures,
		c.inFlight,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// TrackDedupSize publishes the dedup store size as a gauge.
func (c *Collector) TrackDedupSize(size func() int) {
	if c == nil {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dedup_entries",
		Help:      "Event ids held by the dedup store",
	}, func() float64 { return float64(size()) }))
}

func (c *Collector) Outcome(outcome string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(outcome).Inc()
}

func (c *Collector) Blocked(reason string) {
	if c == nil {
		return
	}
	c.blocked.WithLabelValues(reason).Inc()
}

// Backend records one dispatch.
func (c *Collector) Backend(d time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.backendLatency.Observe(d.Seconds())
	if failed {
		c.backendFailures.Inc()
	}
}

func (c *Collector) PostFailed() {
	if c == nil {
		return
	}
	c.postFailures.Inc()
}

// Begin marks an event as in flight; call the returned func when done.
func (c *Collector) Begin() func() {
	if c == nil {
		return func() {}
	}
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// Handler renders the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Instrument wraps an HTTP handler with request count and latency metrics.
func (c *Collector) Instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	if c == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(wrapped, r)

		c.httpRequests.WithLabelValues(name, strconv.Itoa(wrapped.statusCode)).Inc()
		c.httpDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
