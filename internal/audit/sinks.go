package audit

import (
	"context"
	"log/slog"

	"github.com/projectns/projectns/internal/db/models"
)

// SlogShipper writes entries to a slog logger, the way the services host writes its
// command log next to the application log.
type SlogShipper struct {
	logger *slog.Logger
}

// NewSlogShipper creates a shipper on logger; nil means slog.Default().
func NewSlogShipper(logger *slog.Logger) *SlogShipper {
	return &SlogShipper{logger: logger}
}

// Ship logs the entry's line as the message
func (s *SlogShipper) Ship(ctx context.Context, entry *LogEntry) error {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"category", entry.Category, "verb", entry.Verb, "account", entry.Account}
	if entry.RequestID != "" {
		attrs = append(attrs, "request_id", entry.RequestID)
	}
	logger.InfoContext(ctx, entry.Line, attrs...)
	return nil
}

// Close is a no-op
func (s *SlogShipper) Close() error { return nil }

// CommandLogStore is the part of repositories.CommandLogRepository the database shipper uses.
type CommandLogStore interface {
	Append(ctx context.Context, entry *models.CommandLogEntry) error
}

// DBShipper appends entries to the command_log table.
type DBShipper struct {
	store CommandLogStore
}

// NewDBShipper creates a shipper backed by store
func NewDBShipper(store CommandLogStore) *DBShipper {
	return &DBShipper{store: store}
}

// Ship stores the entry
func (d *DBShipper) Ship(ctx context.Context, entry *LogEntry) error {
	return d.store.Append(ctx, &models.CommandLogEntry{
		Source:    entry.Account,
		SourceID:  entry.AccountID,
		Verb:      entry.Verb,
		Line:      entry.Line,
		CreatedAt: entry.Timestamp,
	})
}

// Close is a no-op
func (d *DBShipper) Close() error { return nil }
