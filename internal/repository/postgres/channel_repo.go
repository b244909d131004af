package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func (r *ChannelRepo) List(ctx context.Context) ([]domain.Channel, error) {
	query := `SELECT id, name, kind, created_at FROM channels ORDER BY seq`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Kind, &ch.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	query := `INSERT INTO channels (id, name, kind, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, ch.ID, ch.Name, ch.Kind, ch.CreatedAt)
	return err
}

func (r *ChannelRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
