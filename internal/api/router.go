// Package api wires together all HTTP routes for the project services backend.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/v1/command runs project commands and needs an operator token, because a
//     command always acts as a services account.
//   - /api/v1/projects, /namespaces and /stats are registry reads for auspex holders.
//   - /api/v1/hooks is called by other services (channel services, the IRC bridge)
//     with a service key carrying project:hooks.
//   - /api/v1/accounts is the account mirror, fed by the services host.
//   - /api/v1/admin covers reload, flush, export, backups and token issuance, and every
//     successful call is written to the command log.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/projectns/projectns/internal/api/admin"
	"github.com/projectns/projectns/internal/api/hooks"
	"github.com/projectns/projectns/internal/api/operator"
	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/auth"
	"github.com/projectns/projectns/internal/backup"
	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/jobs"
	"github.com/projectns/projectns/internal/middleware"
	"github.com/projectns/projectns/internal/module"
	"github.com/projectns/projectns/internal/safego"
	"github.com/projectns/projectns/internal/storage"
)

// readinessProbeKey is looked up on the backup storage by /ready. It never exists.
const readinessProbeKey = ".readiness-probe"

// Deps are the long-lived components the router serves. Only Host and Keys are
// required.
type Deps struct {
	Host *module.Host
	Keys *auth.Keyring

	// DB is pinged by /health and /ready. Nil with flat-file persistence.
	DB *sql.DB
	// Shipper receives admin audit entries.
	Shipper audit.Shipper
	// Redis shares rate limits across instances. Nil keeps them in memory.
	Redis redis.UniversalClient
	// Storage and Archive are set when backups are enabled.
	Storage storage.Storage
	Archive *backup.Archive
	// Reload re-reads the configuration and reloads the module.
	Reload admin.ReloadFunc
	// Version is reported by /version and written into backups.
	Version string
}

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	flushJob    *jobs.FlushJob
	backupJob   *jobs.BackupJob
	rateLimiter *middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first, and before
// the module host is closed so the final flush is not raced by a periodic one.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.flushJob != nil {
		bg.flushJob.Stop()
	}
	if bg.backupJob != nil {
		bg.backupJob.Stop()
	}
	if bg.rateLimiter != nil {
		bg.rateLimiter.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the periodic flush and
// backup jobs.
func NewRouter(cfg *config.Config, deps Deps) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS.AllowedOrigins, cfg.Security.CORS.AllowedMethods))

	// Background jobs
	bg.flushJob = jobs.NewFlushJob(deps.Host, cfg.Persistence.FlushInterval)
	safego.Go("flush-job", func() { bg.flushJob.Start(context.Background()) })

	var backupRunner admin.BackupRunner
	if deps.Archive != nil {
		bg.backupJob = jobs.NewBackupJob(deps.Host, deps.Archive, cfg.Backup.Interval)
		backupRunner = bg.backupJob
		safego.Go("backup-job", func() { bg.backupJob.Start(context.Background()) })
	}

	// Rate limiting
	var limiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		rlCfg := middleware.DefaultRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			rlCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			rlCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}
		if deps.Redis != nil {
			limiter = middleware.NewRedisRateLimiter(deps.Redis, rlCfg)
			slog.Info("rate limits shared through redis", "addr", cfg.Security.RateLimiting.RedisAddr)
		} else {
			bg.rateLimiter = middleware.NewRateLimiter(rlCfg)
			limiter = bg.rateLimiter
		}
	}

	// Probes
	router.GET("/health", healthCheckHandler(deps.Host, deps.DB))
	router.GET("/ready", readinessHandler(deps.Host, deps.DB, deps.Storage))
	router.GET("/version", versionHandler(deps.Version))

	// Handlers
	commandHandler := operator.NewCommandHandler(deps.Host)
	projectHandler := operator.NewProjectHandler(deps.Host)
	hookHandler := hooks.NewHandler(deps.Host)
	accountHandlers := admin.NewAccountHandlers(deps.Host.Accounts())
	tokenHandlers := admin.NewTokenHandlers(deps.Host.Accounts())
	systemHandlers := admin.NewSystemHandlers(deps.Host, deps.Reload, deps.Archive, backupRunner)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.Keys))
	if limiter != nil {
		// After auth, so callers are limited per account or service key rather than per IP
		apiV1.Use(middleware.RateLimitMiddleware(limiter))
	}
	{
		// Commands (operator tokens only)
		apiV1.POST("/command", middleware.RequireOperator(), commandHandler.ExecuteHandler())
		apiV1.GET("/commands", middleware.RequireOperator(), commandHandler.ListCommandsHandler())

		// Registry reads
		reads := apiV1.Group("")
		reads.Use(middleware.RequireScope(auth.ScopeProjectAuspex))
		{
			reads.GET("/projects", projectHandler.ListProjectsHandler())
			reads.GET("/projects/:name", projectHandler.GetProjectHandler())
			reads.GET("/projects/:name/marks", projectHandler.ListMarksHandler())
			reads.GET("/namespaces/:kind", projectHandler.ListNamespacesHandler())
			reads.GET("/stats", projectHandler.StatsHandler())
		}

		// Policy hooks
		hookGroup := apiV1.Group("/hooks")
		hookGroup.Use(middleware.RequireScope(auth.ScopeHooks))
		{
			hookGroup.GET("/channel", hookHandler.ChannelProjectHandler())
			hookGroup.GET("/accounts/:id/projects", hookHandler.AccountProjectsHandler())
			hookGroup.POST("/can-register", hookHandler.CanRegisterHandler())
			hookGroup.POST("/did-register", hookHandler.DidRegisterHandler())
			hookGroup.POST("/claim", hookHandler.ClaimHandler())
			hookGroup.POST("/user-info", hookHandler.UserInfoHandler())
		}

		// Account mirror
		accountGroup := apiV1.Group("/accounts")
		accountGroup.Use(middleware.RequireScope(auth.ScopeAccountsWrite))
		accountGroup.Use(middleware.AuditMiddleware(deps.Shipper))
		{
			accountGroup.GET("", accountHandlers.ListAccountsHandler())
			accountGroup.GET("/:id", accountHandlers.GetAccountHandler())
			accountGroup.POST("", accountHandlers.CreateAccountHandler())
			accountGroup.PUT("/:id", accountHandlers.RenameAccountHandler())
			accountGroup.DELETE("/:id", accountHandlers.DeleteAccountHandler())
		}

		// Maintenance
		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(middleware.RequireScope(auth.ScopeAdmin))
		adminGroup.Use(middleware.AuditMiddleware(deps.Shipper))
		{
			adminGroup.POST("/reload", systemHandlers.ReloadHandler())
			adminGroup.POST("/flush", systemHandlers.FlushHandler())
			adminGroup.GET("/export", systemHandlers.ExportHandler())
			adminGroup.GET("/backups", systemHandlers.ListBackupsHandler())
			adminGroup.POST("/backups", systemHandlers.CreateBackupHandler())
			adminGroup.GET("/backups/latest", systemHandlers.LatestBackupHandler())
			adminGroup.POST("/tokens", tokenHandlers.IssueTokenHandler())
		}
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service. Fails when the module host has shut down or the database is unreachable.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(host *module.Host, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := host.Do(func(*module.Instance) error { return nil }); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "module host is closed",
			})
			return
		}

		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the module host, the database and the backup storage when they are configured.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the backup storage so a
// broken bucket credential shows up before the next backup fails.
func readinessHandler(host *module.Host, db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		notReady := func(check, msg string) {
			checks[check] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  msg,
			})
		}

		if err := host.Do(func(*module.Instance) error { return nil }); err != nil {
			notReady("module", "module host is closed")
			return
		}
		checks["module"] = "healthy"

		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				notReady("database", "database not ready")
				return
			}
			checks["database"] = "healthy"
		}

		if store != nil {
			// A known-absent key exercises credentials and connectivity without
			// creating any state.
			rc, err := store.Get(c.Request.Context(), readinessProbeKey)
			if err == nil {
				rc.Close()
			} else if !errors.Is(err, storage.ErrNotFound) {
				notReady("storage", "storage backend not ready")
				return
			}
			checks["storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the build version and the API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one slog record per request. The output format follows the
// handler installed by telemetry.SetupLogger; Logging.Level "debug" also logs probes.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	quietProbes := cfg.Logging.Level != "debug"
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if quietProbes && (path == "/health" || path == "/ready") && c.Writer.Status() < 400 {
			return
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if account := c.GetString(middleware.AccountKey); account != "" {
			attrs = append(attrs, slog.String("account", account))
		}
		if service := c.GetString(middleware.ServiceKey); service != "" {
			attrs = append(attrs, slog.String("service", service))
		}
		slog.LogAttrs(c.Request.Context(), slog.LevelInfo, "http request", attrs...)
	}
}
