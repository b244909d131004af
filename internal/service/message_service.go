package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
	"github.com/vedran77/cypherchat/internal/telemetry"
)

// channelLog is one channel's ordered history. Appends to different
// channels proceed independently.
type channelLog struct {
	mu       sync.Mutex
	messages []domain.Message
	last     time.Time
	dropped  bool
}

// MessageService owns the per-channel message logs.
type MessageService struct {
	repo     repository.MessageRepository
	backend  string
	logger   zerolog.Logger
	notifier Notifier
	now      func() time.Time

	mu   sync.RWMutex
	logs map[string]*channelLog
}

func NewMessageService(repo repository.MessageRepository, backend string, logger zerolog.Logger) *MessageService {
	return &MessageService{
		repo:    repo,
		backend: backend,
		logger:  logger.With().Str("component", "messages").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
		logs:    make(map[string]*channelLog),
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Load restores stored history for the given channels. Stored logs of
// channels not in channelIDs stay in storage but are not reachable. A read
// failure is logged and every channel starts with an empty log.
func (s *MessageService) Load(ctx context.Context, channelIDs []string) error {
	stored, err := s.repo.ListAll(ctx)
	if err != nil {
		telemetry.PersistenceFailures.WithLabelValues(s.backend, "read_messages").Inc()
		s.logger.Error().Err(err).Msg("reading message logs failed, starting empty")
		stored = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, id := range channelIDs {
		l := &channelLog{messages: stored[id]}
		if n := len(l.messages); n > 0 {
			l.last = l.messages[n-1].Timestamp
		}
		total += len(l.messages)
		s.logs[id] = l
	}

	s.logger.Info().Int("channels", len(channelIDs)).Int("messages", total).Msg("message logs loaded")
	return nil
}

// Init creates an empty log for channelID unless one exists.
func (s *MessageService) Init(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[channelID]; !ok {
		s.logs[channelID] = &channelLog{}
	}
}

// Append stores text as a new message in channelID and broadcasts it. The
// timestamp is assigned here and never goes backwards within a channel.
// The returned error wraps ErrPersistence when the message was accepted and
// broadcast but could not be stored.
func (s *MessageService) Append(ctx context.Context, channelID, author, text string) (msg domain.Message, err error) {
	ctx, span := telemetry.StartSpan(ctx, "messages.append", attribute.String("channel.id", channelID))
	defer func() { telemetry.EndSpan(span, err) }()

	l := s.log(channelID)
	if l == nil {
		return domain.Message{}, ErrChannelNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dropped {
		return domain.Message{}, ErrChannelNotFound
	}

	ts := s.now()
	if ts.Before(l.last) {
		ts = l.last
	}

	msg = domain.Message{
		ID:             ulid.Make().String(),
		ChannelID:      channelID,
		AuthorIdentity: author,
		Text:           text,
		Timestamp:      ts,
	}

	var persistErr error
	start := time.Now()
	if err := s.repo.Append(ctx, &msg); err != nil {
		telemetry.PersistenceFailures.WithLabelValues(s.backend, "append_message").Inc()
		s.logger.Error().Err(err).Str("channel_id", channelID).Msg("persisting message failed")
		persistErr = fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	telemetry.ObservePersist(s.backend, start)

	l.messages = append(l.messages, msg)
	l.last = ts
	telemetry.MessagesAppended.Inc()

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(&msg)
	}

	return msg, persistErr
}

// Replay returns a copy of the channel's history in append order. A channel
// without history yields an empty, non-nil slice.
func (s *MessageService) Replay(channelID string) ([]domain.Message, error) {
	l := s.log(channelID)
	if l == nil {
		return nil, ErrChannelNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dropped {
		return nil, ErrChannelNotFound
	}
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out, nil
}

// Subscribe hands the channel's history to subscribe while appends to the
// channel are held off. Anything subscribe registers for live delivery
// therefore sees exactly the messages that follow the history.
func (s *MessageService) Subscribe(channelID string, subscribe func(history []domain.Message)) error {
	l := s.log(channelID)
	if l == nil {
		return ErrChannelNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dropped {
		return ErrChannelNotFound
	}
	history := make([]domain.Message, len(l.messages))
	copy(history, l.messages)
	subscribe(history)
	return nil
}

// Drop discards the channel's history in memory and in storage.
func (s *MessageService) Drop(ctx context.Context, channelID string) error {
	s.mu.Lock()
	l, ok := s.logs[channelID]
	delete(s.logs, channelID)
	s.mu.Unlock()

	if ok {
		l.mu.Lock()
		l.dropped = true
		l.messages = nil
		l.mu.Unlock()
	}

	if err := s.repo.DeleteByChannel(ctx, channelID); err != nil {
		telemetry.PersistenceFailures.WithLabelValues(s.backend, "drop_messages").Inc()
		s.logger.Error().Err(err).Str("channel_id", channelID).Msg("dropping message log failed")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *MessageService) log(channelID string) *channelLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs[channelID]
}
