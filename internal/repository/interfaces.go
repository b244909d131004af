package repository

import (
	"context"
	"errors"

	"github.com/vedran77/cypherchat/internal/domain"
)

// ErrNotFound is returned by backends that can tell a missing row apart.
var ErrNotFound = errors.New("not found")

type ChannelRepository interface {
	// List returns every stored channel in creation order. An empty result
	// means first run.
	List(ctx context.Context) ([]domain.Channel, error)
	Create(ctx context.Context, channel *domain.Channel) error
	Delete(ctx context.Context, id string) error
}

type MessageRepository interface {
	// ListAll returns every stored channel log keyed by channel id, each in append order.
	ListAll(ctx context.Context) (map[string][]domain.Message, error)
	Append(ctx context.Context, msg *domain.Message) error
	DeleteByChannel(ctx context.Context, channelID string) error
}

// Store is one persistence backend holding both durable tables.
type Store interface {
	Channels() ChannelRepository
	Messages() MessageRepository
	Ping(ctx context.Context) error
	Close() error
}
