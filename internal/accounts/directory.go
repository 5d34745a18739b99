// Package accounts mirrors the services host's registered accounts so that project contacts
// and marks can reference them by stable ID and current display name.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/projectns/projectns/internal/events"
	"github.com/projectns/projectns/internal/namespace"
	"github.com/projectns/projectns/internal/validation"
)

var (
	ErrUnknownAccount = errors.New("account not registered")
	ErrNameTaken      = errors.New("account name already registered")
	ErrInvalidName    = errors.New("invalid account name")
)

// Ref is a weak reference to an account: a stable ID plus the name it had when the
// reference was taken.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsZero reports whether r references no account.
func (r Ref) IsZero() bool { return r.ID == "" }

// Store persists the account mirror. Implementations live in the repositories package.
type Store interface {
	ListAccounts(ctx context.Context) ([]Ref, error)
	UpsertAccount(ctx context.Context, ref Ref) error
	DeleteAccount(ctx context.Context, id string) error
}

// Directory is the in-memory account mirror.
type Directory struct {
	mu     sync.RWMutex
	byID   map[string]Ref
	byName map[string]string // folded name -> id

	bus   *events.Bus
	store Store
}

// NewDirectory creates an empty directory. bus and store may be nil.
func NewDirectory(bus *events.Bus, store Store) *Directory {
	return &Directory{
		byID:   make(map[string]Ref),
		byName: make(map[string]string),
		bus:    bus,
		store:  store,
	}
}

// Account names compare with IRC casemapping, as nicknames do.
func fold(name string) string {
	return namespace.PolicyRFC1459.Fold(name)
}

// Hydrate replaces the directory contents with the accounts held by the store.
func (d *Directory) Hydrate(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	refs, err := d.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID = make(map[string]Ref, len(refs))
	d.byName = make(map[string]string, len(refs))
	for _, ref := range refs {
		d.byID[ref.ID] = ref
		d.byName[fold(ref.Name)] = ref.ID
	}
	slog.Info("account directory hydrated", "accounts", len(refs))
	return nil
}

// FindByName looks an account up by case-insensitive name.
func (d *Directory) FindByName(name string) (Ref, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[fold(name)]
	if !ok {
		return Ref{}, false
	}
	return d.byID[id], true
}

// FindByID looks an account up by its stable ID.
func (d *Directory) FindByID(id string) (Ref, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ref, ok := d.byID[id]
	return ref, ok
}

// CurrentName returns the account's present name, or fallback when the account is gone.
func (d *Directory) CurrentName(id, fallback string) string {
	if ref, ok := d.FindByID(id); ok {
		return ref.Name
	}
	return fallback
}

// All returns every account sorted by name.
func (d *Directory) All() []Ref {
	d.mu.RLock()
	out := make([]Ref, 0, len(d.byID))
	for _, ref := range d.byID {
		out = append(out, ref)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return fold(out[i].Name) < fold(out[j].Name) })
	return out
}

// Register adds an account. An empty ID is assigned a new UUID.
func (d *Directory) Register(ctx context.Context, ref Ref) (Ref, error) {
	return d.register(ctx, ref, "")
}

func (d *Directory) register(ctx context.Context, ref Ref, origin string) (Ref, error) {
	if err := validation.ValidateAccountName(ref.Name); err != nil {
		return Ref{}, fmt.Errorf("%w %q: %w", ErrInvalidName, ref.Name, err)
	}
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}

	d.mu.Lock()
	if id, ok := d.byName[fold(ref.Name)]; ok && id != ref.ID {
		d.mu.Unlock()
		return Ref{}, ErrNameTaken
	}
	if old, ok := d.byID[ref.ID]; ok {
		delete(d.byName, fold(old.Name))
	}
	d.byID[ref.ID] = ref
	d.byName[fold(ref.Name)] = ref.ID
	d.mu.Unlock()

	if err := d.persist(ctx, ref); err != nil {
		return ref, err
	}
	d.publish(ctx, events.Event{Kind: events.AccountRegistered, AccountID: ref.ID, AccountName: ref.Name, Origin: origin})
	return ref, nil
}

// Rename changes an account's display name.
func (d *Directory) Rename(ctx context.Context, id, newName string) (Ref, error) {
	return d.rename(ctx, id, newName, "")
}

func (d *Directory) rename(ctx context.Context, id, newName, origin string) (Ref, error) {
	if err := validation.ValidateAccountName(newName); err != nil {
		return Ref{}, fmt.Errorf("%w %q: %w", ErrInvalidName, newName, err)
	}

	d.mu.Lock()
	old, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return Ref{}, ErrUnknownAccount
	}
	if other, taken := d.byName[fold(newName)]; taken && other != id {
		d.mu.Unlock()
		return Ref{}, ErrNameTaken
	}
	ref := Ref{ID: id, Name: newName}
	delete(d.byName, fold(old.Name))
	d.byID[id] = ref
	d.byName[fold(newName)] = id
	d.mu.Unlock()

	if err := d.persist(ctx, ref); err != nil {
		return ref, err
	}
	d.publish(ctx, events.Event{Kind: events.AccountRenamed, AccountID: id, AccountName: newName, PreviousName: old.Name, Origin: origin})
	return ref, nil
}

// Delete removes an account. Subscribers to events.AccountDeleted run before the account
// is forgotten, so they can still resolve its name.
func (d *Directory) Delete(ctx context.Context, id string) (Ref, error) {
	return d.delete(ctx, id, "")
}

func (d *Directory) delete(ctx context.Context, id, origin string) (Ref, error) {
	ref, ok := d.FindByID(id)
	if !ok {
		return Ref{}, ErrUnknownAccount
	}

	d.publish(ctx, events.Event{Kind: events.AccountDeleted, AccountID: ref.ID, AccountName: ref.Name, Origin: origin})

	d.mu.Lock()
	delete(d.byID, id)
	if d.byName[fold(ref.Name)] == id {
		delete(d.byName, fold(ref.Name))
	}
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.DeleteAccount(ctx, id); err != nil {
			return ref, fmt.Errorf("failed to delete account: %w", err)
		}
	}
	return ref, nil
}

// Apply implements events.Sink for account events received from other instances.
func (d *Directory) Apply(ctx context.Context, ev events.Event) error {
	switch ev.Kind {
	case events.AccountRegistered:
		_, err := d.register(ctx, Ref{ID: ev.AccountID, Name: ev.AccountName}, ev.Origin)
		return err
	case events.AccountRenamed:
		_, err := d.rename(ctx, ev.AccountID, ev.AccountName, ev.Origin)
		return err
	case events.AccountDeleted:
		_, err := d.delete(ctx, ev.AccountID, ev.Origin)
		if errors.Is(err, ErrUnknownAccount) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown account event kind %q", ev.Kind)
	}
}

func (d *Directory) persist(ctx context.Context, ref Ref) error {
	if d.store == nil {
		return nil
	}
	if err := d.store.UpsertAccount(ctx, ref); err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}
	return nil
}

func (d *Directory) publish(ctx context.Context, ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ctx, ev)
	}
}
