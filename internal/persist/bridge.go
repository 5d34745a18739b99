package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/projectns/projectns/internal/projects"
	"github.com/projectns/projectns/internal/telemetry"
)

// Bridge connects a registry to its durable store.
type Bridge struct {
	reg   *projects.Registry
	store Store
	dir   AccountResolver

	// serialises flushes so an older export never overwrites a newer one
	mu sync.Mutex
}

// NewBridge creates a bridge between reg and store. dir resolves contact account names on load.
func NewBridge(reg *projects.Registry, store Store, dir AccountResolver) *Bridge {
	return &Bridge{reg: reg, store: store, dir: dir}
}

// Store returns the underlying store.
func (b *Bridge) Store() Store { return b.store }

// Flush exports the registry under its lock and saves the rows outside it.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	rows := Export(b.reg)
	if err := b.store.Save(ctx, rows); err != nil {
		telemetry.FlushErrorsTotal.Inc()
		return fmt.Errorf("failed to save registry: %w", err)
	}
	elapsed := time.Since(start)
	telemetry.FlushDuration.Observe(elapsed.Seconds())
	RecordStats(b.reg.Stats())

	slog.Debug("registry flushed", "rows", len(rows), "duration", elapsed)
	return nil
}

// Load reads every stored row into the registry. It is used at module load when no
// handoff snapshot was passed in.
func (b *Bridge) Load(ctx context.Context) (ImportReport, error) {
	rows, err := b.store.Load(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("failed to load stored rows: %w", err)
	}
	report, err := Import(b.reg, b.dir, rows)
	if err != nil {
		return report, err
	}
	RecordStats(b.reg.Stats())

	slog.Info("registry loaded from storage",
		"projects", report.Projects,
		"rows", report.Rows,
		"deferred", report.Deferred,
		"skipped", report.Skipped,
	)
	return report, nil
}

// RecordStats publishes registry size on the telemetry gauges.
func RecordStats(s projects.Stats) {
	telemetry.ProjectsRegistered.Set(float64(s.Projects))
	telemetry.NamespacesRegistered.WithLabelValues("channel").Set(float64(s.ChannelNamespaces))
	telemetry.NamespacesRegistered.WithLabelValues("cloak").Set(float64(s.CloakNamespaces))
}
