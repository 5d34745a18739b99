// @title           Project Namespace Services API
// @version         1.0.0
// @description     Project registrations, channel and cloak namespaces, contacts and marks for IRC services
// @contact.name    Support
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "Operator JWT or service key. For JWT: 'Bearer {token}'. For a service key: 'Bearer pns_{key}'"
//
// @tag.name         System
// @tag.description  Health, readiness and version probes.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090) that is separate from the main API server. Configure the port with PNS_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics and is not part of the OpenAPI document because it is not served by the Gin router.

// Package main is the entry point for the projectns server binary.
// It dispatches its subcommands (serve, migrate, export, import, restore and
// version) via a simple switch on os.Args so the binary's full CLI surface is
// readable in one place. The serve command runs auto-migration on startup when the
// registry lives in Postgres, so freshly deployed containers never need a separate
// migration step.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/api"
	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/auth"
	"github.com/projectns/projectns/internal/backup"
	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/crypto"
	"github.com/projectns/projectns/internal/db"
	"github.com/projectns/projectns/internal/db/repositories"
	"github.com/projectns/projectns/internal/events"
	"github.com/projectns/projectns/internal/module"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/safego"
	"github.com/projectns/projectns/internal/storage"
	_ "github.com/projectns/projectns/internal/storage/azure"
	_ "github.com/projectns/projectns/internal/storage/gcs"
	_ "github.com/projectns/projectns/internal/storage/local"
	_ "github.com/projectns/projectns/internal/storage/s3"
	"github.com/projectns/projectns/internal/telemetry"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Parse command from args
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command == "version" {
		fmt.Printf("projectns v%s\n", version)
		return nil
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// serve sets up its own logger; the offline commands log as text to stderr
	if command != "serve" {
		slog.SetDefault(telemetry.NewLogger(os.Stderr, "text", cfg.Logging.Level))
	}

	// Execute command
	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "export":
		return runExport(cfg, argOr(2, "-"))
	case "import":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s import <file>", os.Args[0])
		}
		return runImport(cfg, os.Args[2])
	case "restore":
		return runRestore(cfg, argOr(2, ""))
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, export, import, restore, version", command)
	}
}

func argOr(i int, fallback string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return fallback
}

// backend is the durable store selected by persistence.backend. DB is nil for the
// flat file.
type backend struct {
	Store persist.Store
	DB    *sql.DB
	SQLX  *sqlx.DB
}

func (b *backend) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
}

// openBackend connects the durable store. With migrate set, pending schema
// migrations are applied first.
func openBackend(cfg *config.Config, migrate bool) (*backend, error) {
	if cfg.Persistence.Backend != "postgres" {
		slog.Info("using flat file persistence", "path", cfg.Persistence.FlatFilePath)
		return &backend{Store: persist.NewFlatFile(cfg.Persistence.FlatFilePath, version)}, nil
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database", "host", cfg.Database.Host, "port", cfg.Database.Port, "name", cfg.Database.Name)

	if migrate {
		if err := db.RunMigrations(database, "up"); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if v, dirty, err := db.GetMigrationVersion(database); err != nil {
			slog.Warn("failed to get migration version", "error", err)
		} else {
			slog.Info("database schema ready", "version", v, "dirty", dirty)
		}
	}

	sqlxDB := sqlx.NewDb(database, "postgres")
	return &backend{
		Store: persist.NewSQLStore(repositories.NewProjectRepository(sqlxDB)),
		DB:    database,
		SQLX:  sqlxDB,
	}, nil
}

// openArchive builds the backup archive, or returns nil when backups are disabled.
func openArchive(ctx context.Context, cfg *config.Config) (*backup.Archive, storage.Storage, error) {
	if !cfg.Backup.Enabled {
		return nil, nil, nil
	}
	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize backup storage: %w", err)
	}
	if err := storage.Ensure(ctx, store); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare backup storage: %w", err)
	}

	opts := backup.Options{Prefix: cfg.Backup.Prefix, Retain: cfg.Backup.Retain, Build: version}
	if cfg.Backup.EncryptionPassphrase != "" {
		cipher, err := crypto.NewBackupCipher(cfg.Backup.EncryptionPassphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize backup encryption: %w", err)
		}
		opts.Cipher = cipher
	}
	slog.Info("backups enabled", "backend", cfg.Storage.DefaultBackend, "prefix", cfg.Backup.Prefix, "encrypted", opts.Cipher != nil)
	return backup.New(store, opts), store, nil
}

func serviceKeyring(cfg *config.Config) (*auth.Keyring, error) {
	keys := make([]auth.ServiceKey, 0, len(cfg.Auth.ServiceKeys))
	for _, k := range cfg.Auth.ServiceKeys {
		keys = append(keys, auth.ServiceKey{Name: k.Name, Hash: k.Hash, Privileges: k.Privileges})
	}
	return auth.NewKeyring(keys)
}

// commandLog assembles the command log shippers. Without any configured shipper
// lines go to the application log.
func commandLog(cfg *config.Config, b *backend) (*audit.MultiShipper, error) {
	ms, err := audit.NewMultiShipper(cfg.Audit.ShipperConfigs())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize command log shippers: %w", err)
	}
	if cfg.Audit.Database && b.SQLX != nil {
		ms.Add(audit.NewDBShipper(repositories.NewCommandLogRepository(b.SQLX)))
	}
	if ms.Len() == 0 {
		ms.Add(audit.NewSlogShipper(nil))
	}
	return ms, nil
}

// connectNATS bridges account events to other instances. It returns nil when no
// NATS URL is configured.
func connectNATS(cfg *config.Config, bus *events.Bus, dir *accounts.Directory) (*events.NATSBridge, *nats.Conn, error) {
	if cfg.Events.NATSURL == "" {
		return nil, nil, nil
	}
	instanceID := cfg.Events.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	conn, err := nats.Connect(cfg.Events.NATSURL,
		nats.Name("projectns-"+instanceID),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	bridge := events.NewNATSBridge(conn, bus, dir, cfg.Events.SubjectPrefix, instanceID)
	if err := bridge.Start(); err != nil {
		conn.Close()
		return nil, nil, err
	}
	slog.Info("account events bridged to nats", "url", cfg.Events.NATSURL, "instance", instanceID)
	return bridge, conn, nil
}

func connectRedis(ctx context.Context, cfg *config.Config) redis.UniversalClient {
	addr := cfg.Security.RateLimiting.RedisAddr
	if !cfg.Security.RateLimiting.Enabled || addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The limiter fails open, so an unreachable redis only disables limiting
		slog.Warn("redis is not reachable, rate limits will not be enforced until it is", "addr", addr, "error", err)
	}
	return rdb
}

func serve(cfg *config.Config, configPath string) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate JWT secret configuration (fails in production if not set)
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	auth.SetIssuer(cfg.Auth.JWTIssuer)

	keys, err := serviceKeyring(cfg)
	if err != nil {
		return fmt.Errorf("invalid service keys: %w", err)
	}
	slog.Info("service keys loaded", "count", keys.Len())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	b, err := openBackend(cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()
	if b.DB != nil {
		// Begin exporting DB pool statistics to Prometheus.
		telemetry.StartDBStatsCollector(b.DB)
	}

	// Accounts
	bus := events.NewBus()
	var accountStore accounts.Store
	if b.SQLX != nil {
		accountStore = repositories.NewAccountRepository(b.SQLX)
	}
	dir := accounts.NewDirectory(bus, accountStore)
	if err := dir.Hydrate(ctx); err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	bridge, nc, err := connectNATS(cfg, bus, dir)
	if err != nil {
		return err
	}
	if bridge != nil {
		defer func() {
			bridge.Stop()
			_ = nc.Drain()
		}()
	}

	shipper, err := commandLog(cfg, b)
	if err != nil {
		return err
	}
	defer shipper.Close()

	// Module
	modCfg, err := cfg.ModuleConfig(version)
	if err != nil {
		return err
	}
	host, err := module.NewHost(ctx, modCfg, module.Deps{Accounts: dir, Bus: bus, Store: b.Store, Shipper: shipper})
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	archive, backupStore, err := openArchive(ctx, cfg)
	if err != nil {
		_ = host.Close(ctx)
		return err
	}

	rdb := connectRedis(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	// reload re-reads the configuration from disk. Only the module section takes
	// effect; listeners, storage and credentials need a restart.
	reload := func(ctx context.Context) error {
		next, err := config.Load(configPath)
		if err != nil {
			return err
		}
		mc, err := next.ModuleConfig(version)
		if err != nil {
			return err
		}
		return host.Reload(ctx, mc)
	}

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go("metrics-server", func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	// Create router
	router, bgServices := api.NewRouter(cfg, api.Deps{
		Host:    host,
		Keys:    keys,
		DB:      b.DB,
		Shipper: shipper,
		Redis:   rdb,
		Storage: backupStore,
		Archive: archive,
		Reload:  reload,
		Version: version,
	})

	// Reload on config file changes
	if file := config.ConfigFile(configPath); file != "" {
		watcher := config.NewWatcher(file, func(next *config.Config) {
			mc, err := next.ModuleConfig(version)
			if err == nil {
				err = host.Reload(ctx, mc)
			}
			if err != nil {
				slog.Error("config change not applied", "error", err)
			}
		})
		safego.Go("config-watcher", func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("config watcher stopped", "error", err)
			}
		})
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	safego.Go("http-server", func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"persistence", cfg.Persistence.Backend,
			"service", cfg.Projects.ServiceName,
			"tls", cfg.Security.TLS.Enabled,
		)
		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	})

	// Wait for a termination signal. SIGHUP reloads the module like the rehash
	// command on the services host.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var runErr error
wait:
	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				slog.Info("SIGHUP received, reloading")
				if err := reload(ctx); err != nil {
					slog.Error("reload failed", "error", err)
				}
				continue
			}
			break wait
		case err := <-serverErr:
			runErr = fmt.Errorf("server failed: %w", err)
			break wait
		}
	}

	slog.Info("shutting down server")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop background jobs and rate limiter goroutines before the final flush
	bgServices.Shutdown()

	if err := host.Close(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("final flush failed: %w", err))
	}

	slog.Info("server stopped")
	return runErr
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Persistence.Backend != "postgres" {
		return fmt.Errorf("migrations only apply to the postgres backend (persistence.backend is %q)", cfg.Persistence.Backend)
	}

	// Connect to database
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	// Run migrations
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Get current version
	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", v, dirty)
	return nil
}
