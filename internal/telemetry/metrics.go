// Package telemetry provides application-level observability for the vault.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served
// by the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<MSV_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router, so it is never
// reachable through the public API port.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Watermarked copies issued and render latency, by format
//   - Access request and password verification outcomes
//   - Master cache hit/miss counters
//   - Notification and audit shipping failures
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/books/:slug) rather
// than the raw URL. No metric carries an email, slug, or watermark id as a label.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Download metrics, recorded by the download service.
//
// WatermarkRenderDuration uses wide buckets: large PDFs can take several seconds.
//
// Example PromQL queries:
//   - Copies issued per day by format: sum by (format) (increase(watermarked_downloads_total[1d]))
//   - p95 render time:                 histogram_quantile(0.95, sum by (format, le) (rate(watermark_render_duration_seconds_bucket[1h])))
var (
	DownloadsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watermarked_downloads_total",
			Help: "Total number of watermarked copies served, by file format.",
		},
		[]string{"format"},
	)

	WatermarkRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watermark_render_duration_seconds",
			Help:    "Time spent stamping a master, by file format.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"format"},
	)

	WatermarkRenderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watermark_render_errors_total",
			Help: "Total number of masters that could not be stamped, by file format.",
		},
		[]string{"format"},
	)
)

// Access metrics.
//
// AccessRequestsTotal has label {event}: submitted, approved, denied.
// PasswordVerificationsTotal has label {result}: temporary, standing, invalid.
// A spike in result="invalid" alongside rate limit rejections suggests guessing.
var (
	AccessRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_requests_total",
			Help: "Total number of access request lifecycle events, by event.",
		},
		[]string{"event"},
	)

	PasswordVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "password_verifications_total",
			Help: "Total number of password verification attempts, by result.",
		},
		[]string{"result"},
	)
)

// Master cache metrics, recorded by storage.MasterCache.
var (
	MasterCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "master_cache_hits_total",
			Help: "Total number of master file reads served from the in-process cache.",
		},
	)

	MasterCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "master_cache_misses_total",
			Help: "Total number of master file reads that went to object storage.",
		},
	)
)

// Side effect metrics. Both notifications and audit shipping are best effort, so
// these counters are the only signal that they are failing.
//
// Example PromQL queries:
//   - Alert on mail outage: increase(notifications_failed_total[1h]) > 5
var (
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notification emails delivered, by kind.",
		},
		[]string{"kind"},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notification emails that failed to send, by kind.",
		},
		[]string{"kind"},
	)

	AuditShipErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_errors_total",
			Help: "Total number of audit events a shipper failed to deliver, by shipper.",
		},
		[]string{"shipper"},
	)
)

// DBOpenConnections tracks the number of open connections held by the pool. It is
// sampled every 30 seconds by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds until ctx is
// cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
