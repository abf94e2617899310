// Package metrics provides Prometheus instrumentation for the collabpay platform.
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
			Namespace: "collabpay",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "collabpay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentsTotal counts payment records by terminal status.
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabpay",
			Name:      "payments_total",
			Help:      "Total payment lifecycle transitions by status.",
		},
		[]string{"status"},
	)

	// WithdrawalsTotal counts withdrawal requests by terminal status.
	WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabpay",
			Name:      "withdrawals_total",
			Help:      "Total withdrawal requests by status.",
		},
		[]string{"status", "method"},
	)

	// WithdrawalAmount observes gross withdrawal amounts in currency units.
	WithdrawalAmount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "collabpay",
			Name:      "withdrawal_amount",
			Help:      "Gross withdrawal amounts.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	// WebhookEventsTotal counts inbound provider events by type and outcome.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabpay",
			Name:      "webhook_events_total",
			Help:      "Inbound provider webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// WebhookDuplicatesTotal counts redeliveries short-circuited by the gate.
	WebhookDuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collabpay",
			Name:      "webhook_duplicates_total",
			Help:      "Redelivered events acknowledged without handler execution.",
		},
	)

	// BalanceOpsTotal counts ledger mutations by operation and result.
	BalanceOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabpay",
			Name:      "balance_ops_total",
			Help:      "Balance ledger operations by op and result.",
		},
		[]string{"op", "result"},
	)

	// PayoutDuration observes external payout channel call latency.
	PayoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "collabpay",
			Name:      "payout_duration_seconds",
			Help:      "External payout channel call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collabpay", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collabpay", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collabpay", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collabpay", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PaymentsTotal,
		WithdrawalsTotal,
		WithdrawalAmount,
		WebhookEventsTotal,
		WebhookDuplicatesTotal,
		BalanceOpsTotal,
		PayoutDuration,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
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

// statusBucket maps status codes to coarse buckets (2xx, 4xx, ...) to keep
// label cardinality low.
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

// Handler returns the Prometheus metrics HTTP handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
