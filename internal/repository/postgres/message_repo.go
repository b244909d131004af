package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/cypherchat/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) ListAll(ctx context.Context) (map[string][]domain.Message, error) {
	query := `
		SELECT id, channel_id, author_identity, text, created_at
		FROM messages
		ORDER BY channel_id, seq`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make(map[string][]domain.Message)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.AuthorIdentity, &msg.Text, &msg.Timestamp); err != nil {
			return nil, err
		}
		logs[msg.ChannelID] = append(logs[msg.ChannelID], msg)
	}
	return logs, rows.Err()
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, author_identity, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.ChannelID, msg.AuthorIdentity, msg.Text, msg.Timestamp)
	return err
}

func (r *MessageRepo) DeleteByChannel(ctx context.Context, channelID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE channel_id = $1`, channelID)
	return err
}
