package ws

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vedran77/cypherchat/internal/presence"
	"github.com/vedran77/cypherchat/internal/telemetry"
)

// Hub routes outbound events to the connections tracked by the presence
// registry. Each recipient is delivered to independently: a failed send is
// logged and counted and never affects the other recipients.
type Hub struct {
	registry *presence.Registry
	logger   zerolog.Logger
}

func NewHub(registry *presence.Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Registry() *presence.Registry {
	return h.registry
}

// ToConn sends an event to a single connection.
func (h *Hub) ToConn(c presence.Conn, eventType string, payload any) {
	data, ok := h.encode(eventType, payload)
	if !ok {
		return
	}
	h.deliver([]presence.Conn{c}, data)
}

// ToChannel sends an event to every connection joined to channelID, skipping
// excludeIdentity when it is not empty.
func (h *Hub) ToChannel(channelID, eventType string, payload any, excludeIdentity string) {
	data, ok := h.encode(eventType, payload)
	if !ok {
		return
	}

	members := h.registry.MembersOf(channelID)
	if excludeIdentity != "" {
		filtered := members[:0]
		for _, c := range members {
			if c.Identity() != excludeIdentity {
				filtered = append(filtered, c)
			}
		}
		members = filtered
	}
	h.deliver(members, data)
}

// ToAll sends an event to every registered connection.
func (h *Hub) ToAll(eventType string, payload any) {
	data, ok := h.encode(eventType, payload)
	if !ok {
		return
	}
	h.deliver(h.registry.All(), data)
}

// ToChannelIncludingAbsent sends an event to the channel's members and to
// every other registered connection, each exactly once.
func (h *Hub) ToChannelIncludingAbsent(channelID, eventType string, payload any) {
	data, ok := h.encode(eventType, payload)
	if !ok {
		return
	}

	seen := make(map[uuid.UUID]struct{})
	var targets []presence.Conn
	for _, group := range [][]presence.Conn{h.registry.MembersOf(channelID), h.registry.All()} {
		for _, c := range group {
			if _, dup := seen[c.ID()]; dup {
				continue
			}
			seen[c.ID()] = struct{}{}
			targets = append(targets, c)
		}
	}
	h.deliver(targets, data)
}

func (h *Hub) encode(eventType string, payload any) ([]byte, bool) {
	data, err := encodeEvent(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("marshal error")
		return nil, false
	}
	return data, true
}

func (h *Hub) deliver(conns []presence.Conn, data []byte) {
	for _, c := range conns {
		err := c.Send(data)
		if err == nil {
			telemetry.DeliveriesTotal.WithLabelValues("sent").Inc()
			continue
		}

		telemetry.DeliveriesTotal.WithLabelValues("dropped").Inc()
		h.logger.Warn().Err(err).
			Str("identity", c.Identity()).
			Str("conn_id", c.ID().String()).
			Msg("delivery failed")

		// Client buffer full - disconnect
		if errors.Is(err, ErrSendBufferFull) {
			c.Close("send buffer full")
		}
	}
}
