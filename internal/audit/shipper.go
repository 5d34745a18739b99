// Package audit delivers command log lines (PROJECT:REGISTER: foo, MARK:ADD: ...) to their
// destinations. The application log records them as well, but command logs have other
// consumers: network staff review them, and they may be kept far longer than debug output.
// Several destinations (file, webhook, the command_log table, slog) can run at once
// through MultiShipper.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Categories mirror the services host's command log classes.
const (
	CategoryAdmin    = "admin"
	CategoryGet      = "get"
	CategorySet      = "set"
	CategoryRegister = "register"
)

// LogEntry is one audited command
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Category  string            `json:"category"`
	Verb      string            `json:"verb"`
	Line      string            `json:"line"`
	Account   string            `json:"account,omitempty"`
	AccountID string            `json:"account_id,omitempty"`
	Service   string            `json:"service,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Shipper defines the interface for command log shipping
type Shipper interface {
	// Ship sends a log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources
	Close() error
}

// ShipperConfig holds configuration for one shipper
type ShipperConfig struct {
	// Enabled determines if this shipper is active
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Type is the shipper type (webhook, file)
	Type string `mapstructure:"type" json:"type"`
	// Webhook configuration
	Webhook *WebhookConfig `mapstructure:"webhook" json:"webhook,omitempty"`
	// File configuration
	File *FileConfig `mapstructure:"file" json:"file,omitempty"`
}

// WebhookConfig holds webhook shipper configuration
type WebhookConfig struct {
	// URL is the webhook endpoint
	URL string `mapstructure:"url" json:"url"`
	// Headers are additional HTTP headers to send
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	// Timeout is the HTTP request timeout
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// BatchSize is how many entries to batch before sending (0 = no batching)
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`
	// FlushInterval is how often to flush batched entries
	FlushInterval time.Duration `mapstructure:"flush_interval" json:"flush_interval"`
}

// FileConfig holds file shipper configuration
type FileConfig struct {
	Path       string `mapstructure:"path" json:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper creates a new multi-shipper from configs
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{
		shippers: make([]Shipper, 0),
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

// Add appends a shipper built outside the config, such as the database shipper.
func (ms *MultiShipper) Add(s Shipper) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.shippers = append(ms.shippers, s)
}

// Len returns the number of active shippers
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all configured shippers. A failing shipper does not stop the
// others; the last error is returned.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Warn("command log shipper failed", "verb", entry.Verb, "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
