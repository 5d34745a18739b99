package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// Sink applies an event received from another instance to local state.
type Sink interface {
	Apply(ctx context.Context, ev Event) error
}

// NATSBridge mirrors account events between the local Bus and a NATS subject tree.
//
// Locally raised events are published as {prefix}.accounts.{registered,renamed,deleted}
// with Origin set to this instance. Events received from other instances are handed to
// the Sink, which is expected to republish them on the Bus with their Origin intact, so
// they are never forwarded a second time.
type NATSBridge struct {
	conn       *nats.Conn
	bus        *Bus
	sink       Sink
	prefix     string
	instanceID string

	mu     sync.Mutex
	sub    *nats.Subscription
	unsubs []func()
}

// NewNATSBridge creates a bridge. prefix may be empty.
func NewNATSBridge(conn *nats.Conn, bus *Bus, sink Sink, prefix, instanceID string) *NATSBridge {
	return &NATSBridge{
		conn:       conn,
		bus:        bus,
		sink:       sink,
		prefix:     prefix,
		instanceID: instanceID,
	}
}

// Subject returns the NATS subject used for kind.
func (b *NATSBridge) Subject(kind Kind) string {
	if b.prefix == "" {
		return string(kind)
	}
	return b.prefix + "." + string(kind)
}

// Start subscribes to remote events and begins forwarding local ones.
func (b *NATSBridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return nil
	}

	sub, err := b.conn.Subscribe(b.Subject("accounts.*"), b.handleMsg)
	if err != nil {
		return fmt.Errorf("subscribe account events: %w", err)
	}
	b.sub = sub

	for _, kind := range []Kind{AccountRegistered, AccountRenamed, AccountDeleted} {
		b.unsubs = append(b.unsubs, b.bus.Subscribe(kind, b.forward))
	}

	slog.Info("account event bridge started", "subject", b.Subject("accounts.*"), "instance", b.instanceID)
	return nil
}

// Stop removes the NATS subscription and the bus handlers. The connection stays open.
func (b *NATSBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil

	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe account events", "error", err)
		}
		b.sub = nil
	}
}

func (b *NATSBridge) forward(_ context.Context, ev Event) {
	if ev.Origin != "" {
		return
	}
	ev.Origin = b.instanceID

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal account event", "kind", ev.Kind, "error", err)
		return
	}
	if err := b.conn.Publish(b.Subject(ev.Kind), data); err != nil {
		slog.Error("failed to publish account event", "kind", ev.Kind, "error", err)
	}
}

func (b *NATSBridge) handleMsg(msg *nats.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Warn("dropping malformed account event", "subject", msg.Subject, "error", err)
		return
	}
	if ev.Origin == b.instanceID {
		return
	}
	if ev.Origin == "" {
		ev.Origin = "remote"
	}
	if err := b.sink.Apply(context.Background(), ev); err != nil {
		slog.Warn("failed to apply account event", "kind", ev.Kind, "account", ev.AccountName, "error", err)
	}
}
