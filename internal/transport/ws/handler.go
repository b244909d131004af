package ws

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/vedran77/cypherchat/internal/service"
	"github.com/vedran77/cypherchat/internal/telemetry"
	"github.com/vedran77/cypherchat/internal/transport/http/middleware"
)

type Options struct {
	// OriginPatterns is passed to websocket.AcceptOptions. Ignored when
	// InsecureSkipVerify is set.
	OriginPatterns     []string
	InsecureSkipVerify bool
	SendBuffer         int
	ReadLimit          int64
	// CloseSuperseded closes the earlier connection when an identity connects again.
	CloseSuperseded bool
}

// Gateway upgrades requests to WebSocket sessions and drives their lifecycle.
type Gateway struct {
	hub      *Hub
	channels *service.ChannelService
	messages *service.MessageService
	opts     Options
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	wg      sync.WaitGroup
	closing atomic.Bool
}

func NewGateway(hub *Hub, channels *service.ChannelService, messages *service.MessageService, opts Options, logger zerolog.Logger) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Gateway{
		hub:      hub,
		channels: channels,
		messages: messages,
		opts:     opts,
		logger:   logger.With().Str("component", "gateway").Logger(),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// ServeHTTP expects the identity middleware to have run.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.opts.OriginPatterns,
		InsecureSkipVerify: g.opts.InsecureSkipVerify,
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("accept error")
		return
	}
	if g.opts.ReadLimit > 0 {
		conn.SetReadLimit(g.opts.ReadLimit)
	}

	s := newSession(g, conn, middleware.GetIdentity(r.Context()), r.RemoteAddr)
	if err := g.connect(s); err != nil {
		telemetry.SessionsRejected.Inc()
		s.logger.Warn().Msg("connection rejected: no identity provided")
		s.state.Store(int32(StateClosed))
		conn.Close(websocket.StatusPolicyViolation, service.ErrAuthenticationRejected.Error())
		return
	}

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		s.writePump()
	}()
	go func() {
		defer g.wg.Done()
		s.readPump()
	}()
}

// connect moves s from Connecting to Authenticated and sends it the channel list.
func (g *Gateway) connect(s *Session) error {
	prev, err := g.hub.Registry().Register(s.identity, s)
	if err != nil {
		return err
	}
	s.state.Store(int32(StateAuthenticated))
	telemetry.SessionsConnected.Inc()

	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()
	s.logger.Info().Int("sessions", g.hub.Registry().Count()).Msg("client connected")

	if prev != nil {
		telemetry.SessionsSuperseded.Inc()
		s.logger.Info().Str("prev_conn_id", prev.ID().String()).Msg("identity reconnected, previous session superseded")
		if g.opts.CloseSuperseded {
			prev.Close("superseded")
		}
	}

	g.hub.ToConn(s, EventTypeChannelsList, g.channels.List())
	return nil
}

// disconnect is the transport-level end of a session. Channel members are
// not notified, unlike an explicit leave.
func (g *Gateway) disconnect(s *Session) {
	s.closeWith(websocket.StatusNormalClosure, "")
	telemetry.SessionsConnected.Dec()

	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()

	if g.hub.Registry().Unregister(s.identity, s) {
		s.logger.Info().Int("sessions", g.hub.Registry().Count()).Msg("client unregistered")
	} else {
		s.logger.Debug().Msg("superseded session ended")
	}
}

// Shutdown closes every session and waits for their pumps to finish or for
// ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.closing.Store(true)

	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.closeWith(websocket.StatusGoingAway, "server shutting down")
	}
	g.logger.Info().Int("sessions", len(sessions)).Msg("closing sessions")

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
