// Package telemetry provides application-level observability for the project services daemon.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<PNS_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Project command outcomes
//   - Registry size gauges, refreshed after every flush
//   - Flush, reload and backup outcomes
//   - Account lifecycle events
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// No metric carries a project name, namespace or account as a label.
// HTTP metrics use c.FullPath() (route template such as /api/v1/projects/:name)
// rather than the raw request URL.
//
// # Usage
//
//	telemetry.CommandsTotal.WithLabelValues("REGISTER", "ok").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/projects/:name/marks),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
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

// Command metrics, recorded by commands.Service.Execute.
//
// CommandsTotal is a CounterVec with labels {command, outcome}. The outcome label is
// "ok" for a successful command or the fault code (needmoreparams, badparams,
// nosuch_target, alreadyexists, nochange, nosuch_key, noprivs) otherwise. Unknown
// verbs are counted under command="UNKNOWN".
//
// Example PromQL queries:
//   - Command rate:          sum by (command) (rate(projectns_commands_total[5m]))
//   - Permission failures:   rate(projectns_commands_total{outcome="noprivs"}[1h])
var CommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "projectns_commands_total",
		Help: "Total number of project commands executed, by command and outcome.",
	},
	[]string{"command", "outcome"},
)

// Registry size gauges. ProjectsRegistered counts registered projects;
// NamespacesRegistered has the label {kind} ("channel" or "cloak").
var (
	ProjectsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "projectns_projects",
			Help: "Number of registered projects.",
		},
	)

	NamespacesRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "projectns_namespaces",
			Help: "Number of registered namespaces, by kind.",
		},
		[]string{"kind"},
	)
)

// Persistence metrics, recorded by persist.Bridge.Flush and the backup job.
//
// FlushDuration is a Histogram covering export plus save of the whole registry.
// FlushErrorsTotal counts failed flushes; any increase means the durable copy is stale.
//
// Example PromQL queries:
//   - p95 flush time:   histogram_quantile(0.95, rate(projectns_flush_duration_seconds_bucket[1h]))
//   - Alert expression: increase(projectns_flush_errors_total[15m]) > 0
//
// BackupsTotal is a CounterVec with label {outcome} ("ok" or "error").
var (
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "projectns_flush_duration_seconds",
			Help:    "Duration of a registry flush to durable storage.",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "projectns_flush_errors_total",
			Help: "Total number of failed registry flushes.",
		},
	)

	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectns_backups_total",
			Help: "Total number of registry backups, by outcome.",
		},
		[]string{"outcome"},
	)
)

// ReloadsTotal is a CounterVec with label {outcome}: "ok", "incompatible" when the
// handoff snapshot came from a newer schema, or "error".
var ReloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "projectns_reloads_total",
		Help: "Total number of module hot reloads, by outcome.",
	},
	[]string{"outcome"},
)

// AccountEventsTotal is a CounterVec with label {kind} counting account lifecycle events
// handled by the module (accounts.registered, accounts.renamed, accounts.deleted).
var AccountEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "projectns_account_events_total",
		Help: "Total number of account lifecycle events handled, by kind.",
	},
	[]string{"kind"},
)

// BackgroundPanicsTotal is a CounterVec with label {task} counting panics recovered by
// safego.Go. Any increase is a bug.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "projectns_background_panics_total",
		Help: "Total number of panics recovered in background goroutines, by task.",
	},
	[]string{"task"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <PNS_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in cmd/server:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
