// Package events carries account lifecycle notifications between the account mirror and the
// components that hold references to accounts, in process and across instances over NATS.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies an account lifecycle event. The value doubles as the NATS subject suffix.
type Kind string

const (
	AccountRegistered Kind = "accounts.registered"
	AccountRenamed    Kind = "accounts.renamed"
	AccountDeleted    Kind = "accounts.deleted"
)

// Event describes one change to an account.
type Event struct {
	Kind         Kind      `json:"kind"`
	AccountID    string    `json:"account_id"`
	AccountName  string    `json:"account_name"`
	PreviousName string    `json:"previous_name,omitempty"`
	Time         time.Time `json:"time"`
	// Origin is empty for events raised in this process and holds the instance ID of the
	// publisher for events received from NATS.
	Origin string `json:"origin,omitempty"`
}

// Handler receives an event. Handlers run synchronously in subscription order.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id int
	h  Handler
}

// Bus is a synchronous in-process publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers h for kind and returns a function that removes it again.
func (b *Bus) Subscribe(kind Kind, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, h: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, s := range list {
			if s.id == id {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every handler subscribed to its kind and returns once all of
// them have run. A panicking handler is logged and does not stop delivery to the rest.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.mu.RLock()
	list := make([]subscription, len(b.subs[ev.Kind]))
	copy(list, b.subs[ev.Kind])
	b.mu.RUnlock()

	for _, s := range list {
		deliver(ctx, s.h, ev)
	}
}

func deliver(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in event handler", "kind", ev.Kind, "account", ev.AccountName, "panic", r)
		}
	}()
	h(ctx, ev)
}
