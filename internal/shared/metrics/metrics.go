package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "image_vault"

var (
	registry = prometheus.NewRegistry()

	objectsStoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "objects_stored_total",
		Help:      "Objects successfully stored.",
	})
	objectsServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "objects_served_total",
		Help:      "Objects fetched and decrypted.",
	})
	objectErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "object_errors_total",
		Help:      "Failed object operations by operation and error kind.",
	}, []string{"op", "kind"})
	bytesStoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_stored_total",
		Help:      "Plaintext bytes stored.",
	})
	transportRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_retries_total",
		Help:      "Chunk operations retried after a transient failure.",
	}, []string{"op"})
	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
	uploadJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_jobs_total",
		Help:      "Async upload jobs by final status.",
	}, []string{"status"})
	objectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "object_duration_seconds",
		Help:      "Latency of store operations.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"op"})
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		objectsStoredTotal,
		objectsServedTotal,
		objectErrorsTotal,
		bytesStoredTotal,
		transportRetriesTotal,
		rateLimitedTotal,
		uploadJobsTotal,
		objectDuration,
		httpRequestsTotal,
	)
}

// IncObjectStored counts a stored object of size bytes.
func IncObjectStored(size int64) {
	objectsStoredTotal.Inc()
	bytesStoredTotal.Add(float64(size))
}

// IncObjectServed counts a served object.
func IncObjectServed() {
	objectsServedTotal.Inc()
}

// IncObjectError counts a failed operation.
func IncObjectError(op, kind string) {
	objectErrorsTotal.WithLabelValues(op, kind).Inc()
}

// IncTransportRetry counts one chunk retry.
func IncTransportRetry(op string) {
	transportRetriesTotal.WithLabelValues(op).Inc()
}

// IncRateLimited counts a rejected request.
func IncRateLimited() {
	rateLimitedTotal.Inc()
}

// IncUploadJob counts a finished async job.
func IncUploadJob(status string) {
	uploadJobsTotal.WithLabelValues(status).Inc()
}

// ObserveDuration records how long op took since start.
func ObserveDuration(op string, start time.Time) {
	objectDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Middleware counts requests by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Gatherer exposes the registry for tests.
func Gatherer() prometheus.Gatherer {
	return registry
}
