// backup.go implements the BackupJob background job, which periodically exports the
// registry to the backup archive and prunes backups beyond the retention count.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/projectns/projectns/internal/backup"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/safego"
	"github.com/projectns/projectns/internal/storage"
	"github.com/projectns/projectns/internal/telemetry"
)

// DefaultBackupInterval applies when no positive interval is configured.
const DefaultBackupInterval = 24 * time.Hour

// Exporter copies the registry into rows. *module.Host satisfies it.
type Exporter interface {
	Export() ([]persist.Row, error)
}

// BackupJob periodically writes registry backups.
type BackupJob struct {
	source   Exporter
	archive  *backup.Archive
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewBackupJob creates a backup job.
func NewBackupJob(source Exporter, archive *backup.Archive, interval time.Duration) *BackupJob {
	if interval <= 0 {
		interval = DefaultBackupInterval
	}
	return &BackupJob{
		source:   source,
		archive:  archive,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start takes a backup immediately and then once per interval, until Stop is called or
// ctx is cancelled.
func (j *BackupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("backup job started", "interval", j.interval)

	j.run(ctx)
	for {
		select {
		case <-ticker.C:
			j.run(ctx)
		case <-j.stopChan:
			slog.Info("backup job stopped")
			return
		case <-ctx.Done():
			slog.Info("backup job context cancelled")
			return
		}
	}
}

// Stop stops the job. Calling it more than once is safe.
func (j *BackupJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

func (j *BackupJob) run(ctx context.Context) {
	if ok := safego.Run("backup-job", func() { _, _ = j.RunOnce(ctx) }); !ok {
		telemetry.BackupsTotal.WithLabelValues("error").Inc()
	}
}

// RunOnce writes one backup and prunes old ones. A failed prune is logged but does not
// fail the backup that was just written.
func (j *BackupJob) RunOnce(ctx context.Context) (*storage.Object, error) {
	obj, err := j.backup(ctx)
	if err != nil {
		telemetry.BackupsTotal.WithLabelValues("error").Inc()
		slog.Error("backup failed", "error", err)
		return nil, err
	}
	telemetry.BackupsTotal.WithLabelValues("ok").Inc()

	if _, err := j.archive.Prune(ctx); err != nil {
		slog.Warn("failed to prune old backups", "error", err)
	}
	return obj, nil
}

func (j *BackupJob) backup(ctx context.Context) (*storage.Object, error) {
	rows, err := j.source.Export()
	if err != nil {
		return nil, fmt.Errorf("failed to export registry: %w", err)
	}
	return j.archive.Write(ctx, rows)
}
