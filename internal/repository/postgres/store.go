package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/cypherchat/internal/database"
	"github.com/vedran77/cypherchat/internal/repository"
)

type Store struct {
	pool     *pgxpool.Pool
	channels *ChannelRepo
	messages *MessageRepo
}

// Open connects to dsn and returns a Store backed by the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := database.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		pool:     pool,
		channels: NewChannelRepo(pool),
		messages: NewMessageRepo(pool),
	}, nil
}

func (s *Store) Channels() repository.ChannelRepository { return s.channels }
func (s *Store) Messages() repository.MessageRepository { return s.messages }

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
