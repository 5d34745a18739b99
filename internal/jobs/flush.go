// flush.go implements the FlushJob background job, which periodically writes the project
// registry to its durable store so a crash loses at most one interval of changes.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/projectns/projectns/internal/safego"
)

// DefaultFlushInterval applies when no positive interval is configured.
const DefaultFlushInterval = 5 * time.Minute

// Flusher persists in-memory state. *module.Host satisfies it.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushJob periodically flushes the registry.
type FlushJob struct {
	flusher  Flusher
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewFlushJob creates a flush job.
func NewFlushJob(flusher Flusher, interval time.Duration) *FlushJob {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &FlushJob{
		flusher:  flusher,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start runs until Stop is called or ctx is cancelled. The registry was just loaded, so
// the first flush waits one interval.
func (j *FlushJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("flush job started", "interval", j.interval)

	for {
		select {
		case <-ticker.C:
			safego.Run("flush-job", func() {
				_ = j.RunOnce(ctx)
			})
		case <-j.stopChan:
			slog.Info("flush job stopped")
			return
		case <-ctx.Done():
			slog.Info("flush job context cancelled")
			return
		}
	}
}

// Stop stops the job. Calling it more than once is safe.
func (j *FlushJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// RunOnce flushes once and logs a failure.
func (j *FlushJob) RunOnce(ctx context.Context) error {
	if err := j.flusher.Flush(ctx); err != nil {
		slog.Error("periodic flush failed", "error", err)
		return err
	}
	return nil
}
