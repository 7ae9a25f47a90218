package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments. A nil *Metrics is valid and
// records nothing, which keeps service constructors test-friendly.
type Metrics struct {
	readingsAccepted *prometheus.CounterVec
	readingsRejected *prometheus.CounterVec
	rebuilds         *prometheus.CounterVec
	rebuildDuration  prometheus.Histogram
	pointsPublished  prometheus.Counter
	publishFailures  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the instruments on the default registry.
func New() *Metrics {
	return &Metrics{
		readingsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "metermate_readings_accepted_total",
			Help: "Readings accepted by validation, by kind.",
		}, []string{"kind"}),
		readingsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "metermate_readings_rejected_total",
			Help: "Readings rejected by validation, by reason.",
		}, []string{"reason"}),
		rebuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "metermate_rebuilds_total",
			Help: "History rebuild passes, by result.",
		}, []string{"result"}),
		rebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "metermate_rebuild_duration_seconds",
			Help:    "Full recompute-and-republish latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		pointsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metermate_statistic_points_published_total",
			Help: "Statistic points written to the ingestion store.",
		}),
		publishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metermate_publish_failures_total",
			Help: "Failed statistic series publishes.",
		}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"route", "method", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) ReadingAccepted(kind string) {
	if m == nil {
		return
	}
	m.readingsAccepted.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReadingRejected(reason string) {
	if m == nil {
		return
	}
	m.readingsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRebuild(result string, dur time.Duration, points int) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(result).Inc()
	m.rebuildDuration.Observe(dur.Seconds())
	m.pointsPublished.Add(float64(points))
}

func (m *Metrics) PublishFailure() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

// GinMiddleware records request counts and latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
