package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
	"github.com/vedran77/cypherchat/internal/telemetry"
)

// MessageLog is the part of the message service the channel store drives.
type MessageLog interface {
	Init(channelID string)
	Drop(ctx context.Context, channelID string) error
}

// ChannelService owns the authoritative channel list. Mutations are
// serialized by mu and persisted before they are acknowledged.
type ChannelService struct {
	repo     repository.ChannelRepository
	backend  string
	logger   zerolog.Logger
	messages MessageLog
	notifier Notifier
	now      func() time.Time

	mu       sync.RWMutex
	channels []domain.Channel
}

func NewChannelService(repo repository.ChannelRepository, backend string, logger zerolog.Logger) *ChannelService {
	return &ChannelService{
		repo:    repo,
		backend: backend,
		logger:  logger.With().Str("component", "channels").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetMessageLog wires the per-channel logs that follow channel creation and deletion.
func (s *ChannelService) SetMessageLog(l MessageLog) {
	s.messages = l
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ChannelService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Load reads the stored channel table. An empty table is seeded with the
// default channels, and any default missing from a stored table is added back.
// A read failure is logged and the defaults are used instead.
func (s *ChannelService) Load(ctx context.Context) error {
	stored, err := s.repo.List(ctx)
	if err != nil {
		telemetry.PersistenceFailures.WithLabelValues(s.backend, "read_channels").Inc()
		s.logger.Error().Err(err).Msg("reading channels failed, falling back to defaults")
		stored = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels = append([]domain.Channel(nil), stored...)

	var seedErr error
	for _, def := range domain.DefaultChannels(s.now()) {
		if s.indexOf(def.ID) >= 0 {
			continue
		}
		def := def
		s.channels = append(s.channels, def)
		if err := s.repo.Create(ctx, &def); err != nil {
			telemetry.PersistenceFailures.WithLabelValues(s.backend, "seed_channel").Inc()
			s.logger.Error().Err(err).Str("channel_id", def.ID).Msg("persisting default channel failed")
			seedErr = errors.Join(seedErr, err)
		}
	}

	s.logger.Info().Int("channels", len(s.channels)).Msg("channels loaded")
	if seedErr != nil {
		return fmt.Errorf("%w: seeding defaults: %v", ErrPersistence, seedErr)
	}
	return nil
}

// List returns a copy of the channels in creation order.
func (s *ChannelService) List() []domain.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Get returns the channel with the given id.
func (s *ChannelService) Get(id string) (domain.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.channels[i], true
	}
	return domain.Channel{}, false
}

func (s *ChannelService) Exists(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Create adds a channel. The returned error wraps ErrPersistence when the
// channel was created in memory and broadcast but could not be stored.
func (s *ChannelService) Create(ctx context.Context, id, name, kind string) (ch domain.Channel, err error) {
	ctx, span := telemetry.StartSpan(ctx, "channels.create", attribute.String("channel.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) >= 0 {
		return domain.Channel{}, ErrDuplicateChannel
	}

	if name == "" {
		name = id
	}
	ch = domain.Channel{
		ID:        id,
		Name:      name,
		Kind:      domain.NormalizeKind(kind),
		CreatedAt: s.now(),
	}

	persistErr := s.persist("create_channel", func() error { return s.repo.Create(ctx, &ch) })

	// in-memory state advances even when the write failed
	s.channels = append(s.channels, ch)
	if s.messages != nil {
		s.messages.Init(ch.ID)
	}

	s.logger.Info().Str("channel_id", ch.ID).Msg("channel created")
	if s.notifier != nil {
		s.notifier.NotifyChannelCreated(ch, s.snapshot())
	}

	return ch, persistErr
}

// Delete removes a non-default channel and drops its message log.
func (s *ChannelService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "channels.delete", attribute.String("channel.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if domain.IsDefaultChannel(id) {
		return ErrProtectedChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrChannelNotFound
	}

	persistErr := s.persist("delete_channel", func() error {
		if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	})

	s.channels = slices.Delete(s.channels, i, i+1)
	if s.messages != nil {
		if err := s.messages.Drop(ctx, id); err != nil {
			persistErr = errors.Join(persistErr, err)
		}
	}

	s.logger.Info().Str("channel_id", id).Msg("channel deleted")
	if s.notifier != nil {
		s.notifier.NotifyChannelDeleted(id, s.snapshot())
	}

	return persistErr
}

// persist runs write, recording latency and failures. A failure is
// returned wrapped in ErrPersistence.
func (s *ChannelService) persist(op string, write func() error) error {
	start := time.Now()
	err := write()
	telemetry.ObservePersist(s.backend, start)
	if err != nil {
		telemetry.PersistenceFailures.WithLabelValues(s.backend, op).Inc()
		s.logger.Error().Err(err).Str("op", op).Msg("channel persistence failed")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *ChannelService) indexOf(id string) int {
	for i := range s.channels {
		if s.channels[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ChannelService) snapshot() []domain.Channel {
	out := make([]domain.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}
