package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"nhooyr.io/websocket"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/service"
	"github.com/vedran77/cypherchat/internal/telemetry"
	"github.com/vedran77/cypherchat/pkg/validator"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrSessionClosed  = errors.New("session closed")
)

// State is a session's position in its lifecycle. A session only moves
// forward: Connecting, then Authenticated, then Closed.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one WebSocket connection and its identity.
type Session struct {
	id       uuid.UUID
	identity string
	conn     *websocket.Conn
	gateway  *Gateway
	logger   zerolog.Logger

	state atomic.Int32

	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeStatus websocket.StatusCode
	closeReason string
}

func newSession(g *Gateway, conn *websocket.Conn, identity, remoteAddr string) *Session {
	id := uuid.New()
	return &Session{
		id:       id,
		identity: identity,
		conn:     conn,
		gateway:  g,
		logger: g.logger.With().
			Str("identity", identity).
			Str("conn_id", id.String()).
			Str("remote_addr", remoteAddr).
			Logger(),
		send: make(chan []byte, g.opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID    { return s.id }
func (s *Session) Identity() string { return s.identity }
func (s *Session) State() State     { return State(s.state.Load()) }

// Send queues data without blocking.
func (s *Session) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close ends the session with a policy-violation close frame carrying reason.
func (s *Session) Close(reason string) {
	s.closeWith(websocket.StatusPolicyViolation, reason)
}

func (s *Session) closeWith(status websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.closeStatus = status
		s.closeReason = reason
		close(s.done)
	})
}

// readPump processes inbound events one at a time, in arrival order.
func (s *Session) readPump() {
	defer s.gateway.disconnect(s)

	ctx := context.Background()
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.logger.Info().Msg("client disconnected")
			} else if s.State() != StateClosed {
				s.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		if s.State() == StateClosed {
			return
		}
		if typ != websocket.MessageText {
			s.sendError("Expected a text frame")
			continue
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil || event.Type == "" {
			telemetry.InboundEvents.WithLabelValues("malformed").Inc()
			s.sendError("Malformed event")
			continue
		}

		s.handleEvent(ctx, &event)
	}
}

// writePump writes queued events and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-s.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := s.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				s.logger.Debug().Err(err).Msg("write error")
				s.closeWith(websocket.StatusInternalError, "write failed")
				s.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.logger.Debug().Err(err).Msg("ping error")
				s.closeWith(websocket.StatusInternalError, "ping failed")
				s.conn.CloseNow()
				return
			}

		case <-s.done:
			s.conn.Close(s.closeStatus, s.closeReason)
			return
		}
	}
}

var inboundTypes = map[string]bool{
	EventTypeJoinChannel:   true,
	EventTypeLeaveChannel:  true,
	EventTypeCreateChannel: true,
	EventTypeDeleteChannel: true,
	EventTypeSendMessage:   true,
	EventTypeTyping:        true,
	EventTypeStopTyping:    true,
}

func (s *Session) handleEvent(ctx context.Context, event *Event) {
	label := event.Type
	if !inboundTypes[label] {
		label = "unknown"
	}
	telemetry.InboundEvents.WithLabelValues(label).Inc()

	// an orphaned session must not act on the entry of the connection that replaced it
	if current, ok := s.gateway.hub.Registry().Lookup(s.identity); !ok || current.ID() != s.id {
		s.sendError("Session superseded by a newer connection")
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "ws."+label, attribute.String("identity", s.identity))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	switch event.Type {
	case EventTypeJoinChannel:
		var channelID string
		if json.Unmarshal(event.Payload, &channelID) != nil || channelID == "" {
			s.sendError("Invalid join-channel payload")
			return
		}
		err = s.join(channelID)

	case EventTypeLeaveChannel:
		var channelID string
		if json.Unmarshal(event.Payload, &channelID) != nil || channelID == "" {
			s.sendError("Invalid leave-channel payload")
			return
		}
		s.leave(channelID)

	case EventTypeCreateChannel:
		var p CreateChannelPayload
		if json.Unmarshal(event.Payload, &p) != nil {
			s.sendError("Invalid create-channel payload")
			return
		}
		if errs := validator.ValidateChannel(p.ID, p.Name); errs.HasErrors() {
			s.sendError(errs.First("id", "name"))
			return
		}
		kind := p.Kind
		if kind == "" {
			kind = p.Type
		}
		_, err = s.gateway.channels.Create(ctx, p.ID, p.Name, kind)

	case EventTypeDeleteChannel:
		var channelID string
		if json.Unmarshal(event.Payload, &channelID) != nil || channelID == "" {
			s.sendError("Invalid delete-channel payload")
			return
		}
		err = s.gateway.channels.Delete(ctx, channelID)

	case EventTypeSendMessage:
		var p SendMessagePayload
		if json.Unmarshal(event.Payload, &p) != nil || p.ChannelID == "" {
			s.sendError("Invalid send-message payload")
			return
		}
		_, err = s.gateway.messages.Append(ctx, p.ChannelID, s.identity, p.Message.Text)

	case EventTypeTyping:
		var p TypingPayload
		if json.Unmarshal(event.Payload, &p) != nil || p.ChannelID == "" {
			s.sendError("Invalid typing payload")
			return
		}
		s.gateway.hub.ToChannel(p.ChannelID, EventTypeUserTyping, UserTypingPayload{
			Identity:  s.identity,
			ChannelID: p.ChannelID,
			Username:  p.Username,
		}, s.identity)

	case EventTypeStopTyping:
		var p TypingPayload
		if json.Unmarshal(event.Payload, &p) != nil || p.ChannelID == "" {
			s.sendError("Invalid stop-typing payload")
			return
		}
		s.gateway.hub.ToChannel(p.ChannelID, EventTypeUserStopTyping, UserTypingPayload{
			Identity:  s.identity,
			ChannelID: p.ChannelID,
		}, s.identity)

	default:
		s.sendError("Unknown event type: " + event.Type)
		return
	}

	if err != nil {
		s.logger.Debug().Err(err).Str("event", event.Type).Msg("event failed")
		s.sendError(errorMessage(err))
	}
}

// join subscribes the session while appends to the channel are held, so the
// history it receives and the live messages that follow neither overlap nor
// leave a gap.
func (s *Session) join(channelID string) error {
	g := s.gateway
	err := g.messages.Subscribe(channelID, func(history []domain.Message) {
		g.hub.Registry().Join(s.identity, channelID)
		g.hub.ToConn(s, EventTypeChannelMessages, history)
	})
	if err != nil {
		return err
	}

	g.hub.ToChannel(channelID, EventTypeUserJoined, PresencePayload{
		Identity:  s.identity,
		ChannelID: channelID,
		Timestamp: time.Now().UTC(),
	}, s.identity)
	return nil
}

func (s *Session) leave(channelID string) {
	g := s.gateway
	g.hub.Registry().Leave(s.identity, channelID)
	g.hub.ToChannel(channelID, EventTypeUserLeft, PresencePayload{
		Identity:  s.identity,
		ChannelID: channelID,
		Timestamp: time.Now().UTC(),
	}, s.identity)
}

func (s *Session) sendError(message string) {
	s.gateway.hub.ToConn(s, EventTypeError, ErrorPayload{Message: message})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrDuplicateChannel):
		return "Channel already exists"
	case errors.Is(err, service.ErrProtectedChannel):
		return "Cannot delete default channels"
	case errors.Is(err, service.ErrChannelNotFound):
		return "Channel not found"
	case errors.Is(err, service.ErrPersistence):
		return "Change applied but could not be saved"
	default:
		return "Something went wrong"
	}
}
