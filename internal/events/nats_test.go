package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

type recordingSink struct {
	mu  sync.Mutex
	got []Event
	ch  chan Event
}

func (s *recordingSink) Apply(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
	s.ch <- ev
	return nil
}

func TestNATSBridge_ForwardsLocalEvents(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	bus := NewBus()
	bridge := NewNATSBridge(nc, bus, &recordingSink{ch: make(chan Event, 1)}, "projectns", "instance-a")
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	msgs := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("projectns.accounts.deleted", msgs)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	bus.Publish(context.Background(), Event{Kind: AccountDeleted, AccountID: "42", AccountName: "alice"})

	select {
	case msg := <-msgs:
		var ev Event
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "alice", ev.AccountName)
		assert.Equal(t, "instance-a", ev.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded event")
	}
}

func TestNATSBridge_AppliesRemoteEvents(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sink := &recordingSink{ch: make(chan Event, 2)}
	bridge := NewNATSBridge(nc, NewBus(), sink, "", "instance-a")
	require.NoError(t, bridge.Start())
	defer bridge.Stop()
	require.NoError(t, nc.Flush())

	own, _ := json.Marshal(Event{Kind: AccountRenamed, AccountName: "self", Origin: "instance-a"})
	require.NoError(t, nc.Publish("accounts.renamed", own))
	remote, _ := json.Marshal(Event{Kind: AccountRenamed, AccountID: "7", AccountName: "bob", PreviousName: "robert", Origin: "instance-b"})
	require.NoError(t, nc.Publish("accounts.renamed", remote))

	select {
	case ev := <-sink.ch:
		assert.Equal(t, "bob", ev.AccountName)
		assert.Equal(t, "instance-b", ev.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remote event")
	}
}

func TestNATSBridge_DoesNotEchoRemoteEvents(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	bus := NewBus()
	bridge := NewNATSBridge(nc, bus, &recordingSink{ch: make(chan Event, 1)}, "", "instance-a")
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	msgs := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("accounts.deleted", msgs)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	bus.Publish(context.Background(), Event{Kind: AccountDeleted, AccountName: "carol", Origin: "instance-b"})

	select {
	case <-msgs:
		t.Fatal("event received from another instance was forwarded again")
	case <-time.After(200 * time.Millisecond):
	}
}
