package handoff

import (
	"fmt"
	"log/slog"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/projects"
)

// AccountLookup re-resolves account references captured before the reload.
type AccountLookup interface {
	FindByID(id string) (accounts.Ref, bool)
}

// step copies one group of fields from a record into a fresh draft. Steps run in order
// and each one only runs for snapshot versions it applies to.
type step struct {
	name    string
	applies func(version int) bool
	apply   func(rec *ProjectRecord, d *projects.Draft, dir AccountLookup)
}

func since(min int) func(int) bool  { return func(v int) bool { return v >= min } }
func before(max int) func(int) bool { return func(v int) bool { return v < max } }

var steps = []step{
	{name: "base", applies: since(1), apply: migrateBase},
	{name: "cloak", applies: since(MinVersionCloakNamespaces), apply: migrateCloak},
	{name: "creation", applies: since(MinVersionCreationMetadata), apply: migrateCreation},
	{name: "legacyContacts", applies: before(MinVersionContactObjects), apply: migrateLegacyContacts},
	{name: "contacts", applies: since(MinVersionContactObjects), apply: migrateContacts},
}

func migrateBase(rec *ProjectRecord, d *projects.Draft, _ AccountLookup) {
	d.Name = rec.Name
	d.OpenRegistration = rec.OpenRegistration
	d.RegInfo = rec.RegInfo
	d.ChannelNamespaces = append([]string(nil), rec.ChannelNamespaces...)
	d.Marks = append([]projects.Mark(nil), rec.Marks...)
	d.LastMark = rec.LastMark
}

func migrateCloak(rec *ProjectRecord, d *projects.Draft, _ AccountLookup) {
	d.CloakNamespaces = append([]string(nil), rec.CloakNamespaces...)
}

func migrateCreation(rec *ProjectRecord, d *projects.Draft, _ AccountLookup) {
	d.CreatedAt = rec.CreatedAt
	d.Creator = rec.Creator
}

// Old contacts carried no attributes, so they come back hidden and primary.
func migrateLegacyContacts(rec *ProjectRecord, d *projects.Draft, dir AccountLookup) {
	for _, ref := range rec.LegacyContacts {
		if ref, ok := resolve(ref, rec.Name, dir); ok {
			d.Contacts = append(d.Contacts, projects.DraftContact{Account: ref})
		}
	}
}

func migrateContacts(rec *ProjectRecord, d *projects.Draft, dir AccountLookup) {
	for _, c := range rec.Contacts {
		if ref, ok := resolve(c.Account, rec.Name, dir); ok {
			d.Contacts = append(d.Contacts, projects.DraftContact{Account: ref, Visible: c.Visible, Secondary: c.Secondary})
		}
	}
}

// resolve refreshes a captured reference. Accounts dropped while the module was
// unloaded lose their contact links.
func resolve(ref accounts.Ref, project string, dir AccountLookup) (accounts.Ref, bool) {
	if dir == nil {
		return ref, !ref.IsZero()
	}
	cur, ok := dir.FindByID(ref.ID)
	if !ok {
		slog.Warn("dropping contact for unknown account", "project", project, "account", ref.Name, "account_id", ref.ID)
		return accounts.Ref{}, false
	}
	return cur, true
}

// Restore rebuilds reg from snap and returns the service name recorded in it.
// A snapshot from a newer schema is refused without touching reg and stays unconsumed.
// Every index is regenerated by reg.Restore; nothing derived is taken from the snapshot.
func Restore(snap *Snapshot, reg *projects.Registry, dir AccountLookup) (string, error) {
	snap.mu.Lock()
	defer snap.mu.Unlock()

	if snap.consumed {
		return "", ErrSnapshotConsumed
	}
	if snap.Version > SchemaVersion {
		slog.Error(fmt.Sprintf("attempted to load data from newer module (%d > %d)", snap.Version, SchemaVersion))
		slog.Error("This module cannot be safely reloaded without restarting services")
		return "", fmt.Errorf("%w (%d > %d)", ErrSchemaIncompatible, snap.Version, SchemaVersion)
	}
	if snap.Version < 1 {
		return "", fmt.Errorf("invalid snapshot version %d", snap.Version)
	}
	slog.Debug("restoring pre-reload structures", "old", snap.Version, "new", SchemaVersion)

	drafts := make([]projects.Draft, 0, len(snap.Projects))
	for _, rec := range snap.Projects {
		if rec == nil {
			continue
		}
		var d projects.Draft
		for _, s := range steps {
			if s.applies(snap.Version) {
				s.apply(rec, &d, dir)
			}
		}
		drafts = append(drafts, d)
	}

	if err := reg.Restore(drafts); err != nil {
		return "", fmt.Errorf("failed to restore snapshot: %w", err)
	}
	snap.consumed = true
	snap.Projects = nil
	return snap.Service, nil
}
