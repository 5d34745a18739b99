// command_log_repository.go implements CommandLogRepository for the audited command lines
// emitted by successful project commands.
package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/projectns/projectns/internal/db/models"
)

// CommandLogRepository handles command log database operations
type CommandLogRepository struct {
	db *sqlx.DB
}

// NewCommandLogRepository creates a new command log repository
func NewCommandLogRepository(db *sqlx.DB) *CommandLogRepository {
	return &CommandLogRepository{db: db}
}

// Append stores one command log line
func (r *CommandLogRepository) Append(ctx context.Context, entry *models.CommandLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO command_log (source, source_id, verb, line, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		entry.Source, entry.SourceID, entry.Verb, entry.Line, entry.CreatedAt,
	).Scan(&entry.ID)
}
