package ws

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/vedran77/cypherchat/internal/presence"
	"github.com/vedran77/cypherchat/internal/telemetry"
)

type stubConn struct {
	id       uuid.UUID
	identity string
	sendErr  error
	received []Event
	closed   string
}

func newStubConn(identity string) *stubConn {
	return &stubConn{id: uuid.New(), identity: identity}
}

func (c *stubConn) ID() uuid.UUID       { return c.id }
func (c *stubConn) Identity() string    { return c.identity }
func (c *stubConn) Close(reason string) { c.closed = reason }

func (c *stubConn) Send(data []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	c.received = append(c.received, evt)
	return nil
}

func newStubHub(t *testing.T, conns ...*stubConn) *Hub {
	t.Helper()
	registry := presence.NewRegistry()
	for _, c := range conns {
		if _, err := registry.Register(c.identity, c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return NewHub(registry, zerolog.Nop())
}

func TestDeliveryFailureIsIsolated(t *testing.T) {
	a, full, closed, b := newStubConn("A"), newStubConn("full"), newStubConn("closed"), newStubConn("B")
	full.sendErr = ErrSendBufferFull
	closed.sendErr = ErrSessionClosed
	hub := newStubHub(t, a, full, closed, b)
	for _, c := range []*stubConn{a, full, closed, b} {
		hub.Registry().Join(c.identity, "general")
	}

	dropped := telemetry.DeliveriesTotal.WithLabelValues("dropped")
	before := testutil.ToFloat64(dropped)

	hub.ToChannel("general", EventTypeReceiveMessage, map[string]string{"text": "hi"}, "")

	if len(a.received) != 1 || len(b.received) != 1 {
		t.Fatalf("healthy recipients missed the event: a=%d b=%d", len(a.received), len(b.received))
	}
	if full.closed == "" {
		t.Error("connection with a full buffer was not closed")
	}
	if closed.closed != "" {
		t.Error("already closed connection closed again")
	}
	if got := testutil.ToFloat64(dropped) - before; got != 2 {
		t.Errorf("expected 2 dropped deliveries, got %v", got)
	}
}

func TestToChannelExcludesSender(t *testing.T) {
	a, b, outsider := newStubConn("A"), newStubConn("B"), newStubConn("C")
	hub := newStubHub(t, a, b, outsider)
	hub.Registry().Join("A", "dev-talk")
	hub.Registry().Join("B", "dev-talk")

	hub.ToChannel("dev-talk", EventTypeUserTyping, UserTypingPayload{Identity: "A"}, "A")

	if len(a.received) != 0 {
		t.Error("excluded identity received the event")
	}
	if len(b.received) != 1 || b.received[0].Type != EventTypeUserTyping {
		t.Errorf("member did not receive the event: %+v", b.received)
	}
	if len(outsider.received) != 0 {
		t.Error("non-member received the event")
	}
}

func TestToChannelIncludingAbsentDeliversOnce(t *testing.T) {
	member, other := newStubConn("A"), newStubConn("B")
	hub := newStubHub(t, member, other)
	hub.Registry().Join("A", "ann")

	hub.ToChannelIncludingAbsent("ann", EventTypeChannelDeleted, "ann")

	if len(member.received) != 1 {
		t.Errorf("member received %d copies", len(member.received))
	}
	if len(other.received) != 1 {
		t.Errorf("non-member received %d copies", len(other.received))
	}
}
