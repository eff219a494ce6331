// Package metrics provides Prometheus instrumentation for the vendord service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vendord",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LicenseValidationsTotal counts license validations by outcome
	// (valid, not_found, inactive, expired, domain_mismatch).
	LicenseValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "license_validations_total",
			Help:      "Total license validations by outcome.",
		},
		[]string{"outcome"},
	)

	// ActivationsTotal counts activation attempts by result.
	ActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "license_activations_total",
			Help:      "Total license activation attempts by result.",
		},
		[]string{"result"},
	)

	// CreditsUsedTotal counts credits debited across all licenses.
	CreditsUsedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vendord",
		Name:      "credits_used_total",
		Help:      "Total credits debited across all licenses.",
	})

	// CreditDebitFailuresTotal counts debits that failed after a metered
	// response was already delivered.
	CreditDebitFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vendord",
		Name:      "credit_debit_failures_total",
		Help:      "Total credit debits that failed after delivering a metered response.",
	})

	// CreditResetsTotal counts monthly credit resets by result.
	CreditResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "credit_resets_total",
			Help:      "Total per-license credit resets by result (reset, cancelled, error).",
		},
		[]string{"result"},
	)

	// ProviderRequestsTotal counts upstream provider calls by provider and outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "provider_requests_total",
			Help:      "Total upstream provider requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// KeyRotationsTotal counts fallbacks to the next provider key by reason.
	KeyRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "key_rotations_total",
			Help:      "Total provider key rotations by reason (quota, rate_limited).",
		},
		[]string{"reason"},
	)

	// JobPollsTotal counts async job status polls.
	JobPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vendord",
		Name:      "job_polls_total",
		Help:      "Total async job status polls against providers.",
	})

	// TranscriptCacheHitsTotal counts transcript cache lookups by result.
	TranscriptCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "transcript_cache_lookups_total",
			Help:      "Transcript cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	// NotificationsTotal counts outbound notifications by event and result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendord",
			Name:      "notifications_total",
			Help:      "Total outbound notifications by event and delivery result.",
		},
		[]string{"event", "result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vendord",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vendord", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vendord", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vendord", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vendord", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vendord", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vendord", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LicenseValidationsTotal,
		ActivationsTotal,
		CreditsUsedTotal,
		CreditDebitFailuresTotal,
		CreditResetsTotal,
		ProviderRequestsTotal,
		KeyRotationsTotal,
		JobPollsTotal,
		TranscriptCacheHitsTotal,
		NotificationsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
