// Package module hosts the project registry as a reloadable unit. An Instance is one
// loaded generation: registry, policy hooks, command surface and persistence bridge.
// The Host owns the current Instance and swaps it on hot reload by capturing a handoff
// snapshot from the outgoing generation and restoring it into the incoming one.
package module

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/commands"
	"github.com/projectns/projectns/internal/events"
	"github.com/projectns/projectns/internal/handoff"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/policy"
	"github.com/projectns/projectns/internal/projects"
)

// Config is everything a reload may change.
type Config struct {
	ServiceName string
	Build       string
	Registry    projects.Options
	Policy      policy.Config
}

// Deps outlive reloads. Store and Shipper may be nil: without a store nothing is
// loaded at startup and Flush is a no-op; without a shipper command lines go to slog.
type Deps struct {
	Accounts *accounts.Directory
	Bus      *events.Bus
	Store    persist.Store
	Shipper  audit.Shipper
}

// Instance is one loaded generation of the module.
type Instance struct {
	Registry *projects.Registry
	Hooks    *policy.Hooks
	Commands *commands.Service
	Bridge   *persist.Bridge

	cfg Config
}

// Config returns the configuration the instance was loaded with.
func (in *Instance) Config() Config { return in.cfg }

// Load builds a new instance. With a snapshot the state comes from the outgoing
// generation and the durable store is not read; otherwise it comes from the store.
func Load(ctx context.Context, cfg Config, deps Deps, snap *handoff.Snapshot) (*Instance, error) {
	if deps.Accounts == nil {
		deps.Accounts = accounts.NewDirectory(deps.Bus, nil)
	}

	reg := projects.New(cfg.Registry)
	hooks := policy.New(reg, cfg.Policy)
	in := &Instance{
		Registry: reg,
		Hooks:    hooks,
		Commands: commands.New(commands.Deps{
			Registry: reg,
			Accounts: deps.Accounts,
			Hooks:    hooks,
			Shipper:  deps.Shipper,
		}, commands.Config{ServiceName: cfg.ServiceName}),
		cfg: cfg,
	}
	if deps.Store != nil {
		in.Bridge = persist.NewBridge(reg, deps.Store, deps.Accounts)
	}

	switch {
	case snap != nil:
		service, err := handoff.Restore(snap, reg, deps.Accounts)
		if err != nil {
			return nil, err
		}
		if service != "" && service != cfg.ServiceName {
			slog.Info("service renamed across reload", "old", service, "new", cfg.ServiceName)
		}
		persist.RecordStats(reg.Stats())
	case in.Bridge != nil:
		if _, err := in.Bridge.Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
	}

	slog.Info("project registry loaded", "projects", reg.Len(), "from_snapshot", snap != nil)
	return in, nil
}

// Flush writes the registry to the durable store, if there is one.
func (in *Instance) Flush(ctx context.Context) error {
	if in.Bridge == nil {
		return nil
	}
	return in.Bridge.Flush(ctx)
}
