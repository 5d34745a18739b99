// Package config loads and validates the projectns configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the PNS_ prefix (e.g., PNS_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs from a config.yaml
// in development and from pure environment variables in a container.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/projectns/projectns/internal/namespace"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Projects    ProjectsConfig    `mapstructure:"projects"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Security    SecurityConfig    `mapstructure:"security"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Events      EventsConfig      `mapstructure:"events"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Storage     StorageConfig     `mapstructure:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// PersistenceConfig selects where the registry is written between restarts
type PersistenceConfig struct {
	// Backend is "postgres" or "flatfile"
	Backend      string `mapstructure:"backend"`
	FlatFilePath string `mapstructure:"flatfile_path"`
	// FlushInterval is how often the registry is written out
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// ProjectsConfig holds registry and policy settings. Everything here can change on a
// hot reload.
type ProjectsConfig struct {
	ServiceName             string `mapstructure:"service_name"`
	NamespaceSeparators     string `mapstructure:"namespace_separators"`
	DefaultOpenRegistration bool   `mapstructure:"default_open_registration"`
	NameLength              int    `mapstructure:"name_length"`
	ChannelLength           int    `mapstructure:"channel_length"`
	CloakLength             int    `mapstructure:"cloak_length"`
	// ChannelCompare and CloakCompare are rfc1459, ascii or exact
	ChannelCompare string `mapstructure:"channel_compare"`
	CloakCompare   string `mapstructure:"cloak_compare"`

	RegisterRequireNamespace       bool   `mapstructure:"register_require_namespace"`
	RegisterRequireNamespaceExempt string `mapstructure:"register_require_namespace_exempt"`
	RegisterProjectAdvice          string `mapstructure:"register_project_advice"`
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	// JWTIssuer is the expected iss claim on operator tokens
	JWTIssuer string `mapstructure:"jwt_issuer"`
	// ServiceKeys are bcrypt hashes of keys trusted by other services
	ServiceKeys []ServiceKeyConfig `mapstructure:"service_keys"`
}

// ServiceKeyConfig is one pre-shared service key
type ServiceKeyConfig struct {
	Name       string   `mapstructure:"name"`
	Hash       string   `mapstructure:"hash"`
	Privileges []string `mapstructure:"privileges"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// RedisAddr shares limits across instances; empty keeps them in memory
	RedisAddr string `mapstructure:"redis_addr"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds command log shipping configuration
type AuditConfig struct {
	// Database also appends command log lines to the command_log table
	Database bool `mapstructure:"database"`
	// Shippers configures external log shipping
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single command log shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// EventsConfig connects the account event bus to NATS
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	InstanceID    string `mapstructure:"instance_id"`
}

// BackupConfig holds periodic backup configuration
type BackupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// Retain is how many backups are kept; 0 keeps everything
	Retain int    `mapstructure:"retain"`
	Prefix string `mapstructure:"prefix"`
	// EncryptionPassphrase enables AES-GCM encryption of backup files
	EncryptionPassphrase string `mapstructure:"encryption_passphrase"`
}

// StorageConfig holds backup storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is "default", "static", "oidc" or "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`
	// AuthMethod is "default", "service_account" or "workload_identity"
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	Endpoint        string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv() alone does not reach nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Persistence
		"persistence.backend",
		"persistence.flatfile_path",
		"persistence.flush_interval",

		// Projects
		"projects.service_name",
		"projects.namespace_separators",
		"projects.default_open_registration",
		"projects.name_length",
		"projects.channel_length",
		"projects.cloak_length",
		"projects.channel_compare",
		"projects.cloak_compare",
		"projects.register_require_namespace",
		"projects.register_require_namespace_exempt",
		"projects.register_project_advice",

		// Auth
		"auth.jwt_issuer",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.redis_addr",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.database",

		// Events
		"events.nats_url",
		"events.subject_prefix",
		"events.instance_id",

		// Backup
		"backup.enabled",
		"backup.interval",
		"backup.retain",
		"backup.prefix",
		"backup.encryption_passphrase",

		// Storage
		"storage.default_backend",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.container_name",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.s3.web_identity_token_file",
		"storage.gcs.bucket",
		"storage.gcs.project_id",
		"storage.gcs.auth_method",
		"storage.gcs.credentials_file",
		"storage.gcs.credentials_json",
		"storage.gcs.endpoint",
		"storage.local.base_path",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Backup.EncryptionPassphrase = expandEnv(cfg.Backup.EncryptionPassphrase)
	for i := range cfg.Auth.ServiceKeys {
		cfg.Auth.ServiceKeys[i].Hash = expandEnv(cfg.Auth.ServiceKeys[i].Hash)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigFile returns the file Load would read for configPath, or "" when there is none.
func ConfigFile(configPath string) string {
	v, err := newViper(configPath)
	if err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/projectns")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("PNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "projectns")
	v.SetDefault("database.user", "projectns")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_idle_connections", 2)

	// Persistence defaults
	v.SetDefault("persistence.backend", "flatfile")
	v.SetDefault("persistence.flatfile_path", "./projectns.db")
	v.SetDefault("persistence.flush_interval", "5m")

	// Projects defaults
	v.SetDefault("projects.service_name", "ProjectServ")
	v.SetDefault("projects.namespace_separators", "-")
	v.SetDefault("projects.default_open_registration", false)
	v.SetDefault("projects.name_length", 50)
	v.SetDefault("projects.channel_length", 50)
	v.SetDefault("projects.cloak_length", 63)
	v.SetDefault("projects.channel_compare", "rfc1459")
	v.SetDefault("projects.cloak_compare", "exact")
	v.SetDefault("projects.register_require_namespace", false)

	// Auth defaults
	v.SetDefault("auth.jwt_issuer", "projectns")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.database", true)

	// Events defaults
	v.SetDefault("events.subject_prefix", "projectns")

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.interval", "24h")
	v.SetDefault("backup.retain", 7)
	v.SetDefault("backup.prefix", "backups")

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./storage")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate persistence
	switch c.Persistence.Backend {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case "flatfile":
		if c.Persistence.FlatFilePath == "" {
			return fmt.Errorf("persistence.flatfile_path is required when using the flatfile backend")
		}
	default:
		return fmt.Errorf("invalid persistence backend: %s (must be postgres or flatfile)", c.Persistence.Backend)
	}
	if c.Persistence.FlushInterval <= 0 {
		return fmt.Errorf("persistence.flush_interval must be positive")
	}

	// Validate projects
	if c.Projects.ServiceName == "" {
		return fmt.Errorf("projects.service_name is required")
	}
	if c.Projects.NamespaceSeparators == "" {
		return fmt.Errorf("projects.namespace_separators must not be empty")
	}
	if _, err := namespace.ParsePolicy(c.Projects.ChannelCompare, namespace.PolicyRFC1459); err != nil {
		return fmt.Errorf("invalid projects.channel_compare: %w", err)
	}
	if _, err := namespace.ParsePolicy(c.Projects.CloakCompare, namespace.PolicyExact); err != nil {
		return fmt.Errorf("invalid projects.cloak_compare: %w", err)
	}

	// Validate service keys
	for i, k := range c.Auth.ServiceKeys {
		if k.Name == "" || k.Hash == "" {
			return fmt.Errorf("auth.service_keys[%d] needs both name and hash", i)
		}
	}

	// Validate backups and their storage
	if c.Backup.Enabled {
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be positive when backups are enabled")
		}
		if err := c.Storage.validate(); err != nil {
			return err
		}
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.DefaultBackend {
	case "azure":
		if s.Azure.AccountName == "" {
			return fmt.Errorf("storage.azure.account_name is required when using Azure backend")
		}
		if s.Azure.AccountKey == "" {
			return fmt.Errorf("storage.azure.account_key is required when using Azure backend")
		}
		if s.Azure.ContainerName == "" {
			return fmt.Errorf("storage.azure.container_name is required when using Azure backend")
		}
	case "s3":
		if s.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if s.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	case "gcs":
		if s.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required when using GCS backend")
		}
	case "local":
		if s.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be azure, s3, gcs, or local)", s.DefaultBackend)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
