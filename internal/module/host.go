package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/commands"
	"github.com/projectns/projectns/internal/events"
	"github.com/projectns/projectns/internal/handoff"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/telemetry"
)

// ErrClosed is returned once the host has been closed.
var ErrClosed = errors.New("module host is closed")

// Host owns the current Instance. Commands, hooks and flushes run under the read lock;
// Reload holds the write lock for the whole capture, rebuild and restore sequence.
type Host struct {
	mu     sync.RWMutex
	inst   *Instance
	deps   Deps
	closed bool

	unsubscribe []func()
}

// NewHost loads the first instance from the durable store and subscribes to account
// lifecycle events.
func NewHost(ctx context.Context, cfg Config, deps Deps) (*Host, error) {
	if deps.Accounts == nil {
		deps.Accounts = accounts.NewDirectory(deps.Bus, nil)
	}
	inst, err := Load(ctx, cfg, deps, nil)
	if err != nil {
		return nil, err
	}

	h := &Host{inst: inst, deps: deps}
	if deps.Bus != nil {
		h.unsubscribe = append(h.unsubscribe,
			deps.Bus.Subscribe(events.AccountDeleted, h.accountDeleted),
			deps.Bus.Subscribe(events.AccountRenamed, h.accountRenamed),
		)
	}
	return h, nil
}

// Accounts returns the account directory shared by every generation.
func (h *Host) Accounts() *accounts.Directory { return h.deps.Accounts }

// Do runs fn against the current instance under the read lock.
func (h *Host) Do(fn func(*Instance) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	return fn(h.inst)
}

// Execute runs one command against the current instance.
func (h *Host) Execute(ctx context.Context, src commands.Source, verb string, args []string) commands.Result {
	var res commands.Result
	err := h.Do(func(in *Instance) error {
		res = in.Commands.Execute(ctx, src, verb, args)
		return nil
	})
	if err != nil {
		return commands.Result{
			Lines: []string{"Services are shutting down."},
			Fault: &commands.Fault{Code: commands.FaultNoPrivs, Message: "Services are shutting down."},
		}
	}
	return res
}

// Flush writes the current registry to the durable store.
func (h *Host) Flush(ctx context.Context) error {
	return h.Do(func(in *Instance) error { return in.Flush(ctx) })
}

// Export copies the current registry into durable rows without touching the store.
func (h *Host) Export() ([]persist.Row, error) {
	var rows []persist.Row
	err := h.Do(func(in *Instance) error {
		rows = persist.Export(in.Registry)
		return nil
	})
	return rows, err
}

// Build returns the build string of the current generation.
func (h *Host) Build() string {
	var build string
	_ = h.Do(func(in *Instance) error {
		build = in.cfg.Build
		return nil
	})
	return build
}

// Reload replaces the current instance with one built from cfg. The outgoing state is
// handed over through a snapshot. If the new instance cannot take it, the snapshot is
// restored into an instance with the previous configuration and the error returned.
func (h *Host) Reload(ctx context.Context, cfg Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	start := time.Now()
	old := h.inst
	snap := handoff.Capture(old.Registry, old.cfg.ServiceName, old.cfg.Build)

	next, err := Load(ctx, cfg, h.deps, snap)
	if err != nil {
		outcome := "error"
		if errors.Is(err, handoff.ErrSchemaIncompatible) {
			outcome = "incompatible"
		}
		telemetry.ReloadsTotal.WithLabelValues(outcome).Inc()

		restored, rerr := Load(ctx, old.cfg, h.deps, snap)
		if rerr != nil {
			// Nothing left to hand the state to; keep serving the emptied generation.
			slog.Error("failed to restore registry after aborted reload", "error", rerr)
			return fmt.Errorf("failed to reload: %w (rollback failed: %v)", err, rerr)
		}
		h.inst = restored
		return fmt.Errorf("failed to reload: %w", err)
	}

	h.inst = next
	telemetry.ReloadsTotal.WithLabelValues("ok").Inc()
	slog.Info("module reloaded", "projects", next.Registry.Len(), "duration", time.Since(start))
	return nil
}

// Close stops event handling and flushes the registry one last time.
func (h *Host) Close(ctx context.Context) error {
	for _, unsub := range h.unsubscribe {
		unsub()
	}
	h.unsubscribe = nil

	err := h.Flush(ctx)

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return err
}

func (h *Host) accountDeleted(ctx context.Context, ev events.Event) {
	telemetry.AccountEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	ref := accounts.Ref{ID: ev.AccountID, Name: ev.AccountName}

	_ = h.Do(func(in *Instance) error {
		for _, project := range in.Registry.AccountDeleted(ref) {
			h.logLine(ctx, "CONTACT", fmt.Sprintf("PROJECT:CONTACT:LOST: %s from %s", ev.AccountName, project))
		}
		return nil
	})
}

func (h *Host) accountRenamed(_ context.Context, ev events.Event) {
	telemetry.AccountEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	ref := accounts.Ref{ID: ev.AccountID, Name: ev.AccountName}

	_ = h.Do(func(in *Instance) error {
		if n := in.Registry.AccountRenamed(ref); n > 0 {
			slog.Debug("contact names updated", "account", ev.AccountName, "previous", ev.PreviousName, "contacts", n)
		}
		return nil
	})
}

// logLine writes a command log line not caused by any operator.
func (h *Host) logLine(ctx context.Context, verb, line string) {
	if h.deps.Shipper == nil {
		slog.InfoContext(ctx, line)
		return
	}
	entry := &audit.LogEntry{
		Timestamp: time.Now().UTC(),
		Category:  audit.CategoryAdmin,
		Verb:      verb,
		Line:      line,
		Service:   h.inst.cfg.ServiceName,
	}
	if err := h.deps.Shipper.Ship(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to ship command log", "line", line, "error", err)
	}
}
