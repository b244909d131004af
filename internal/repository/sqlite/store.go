// Package sqlite stores channels and messages in a single embedded database file.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
)

// Store handles SQLite database operations.
type Store struct {
	db       *sql.DB
	channels *ChannelRepo
	messages *MessageRepo
}

// Open creates the database at dbPath (and its directory) if needed.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = "./data/cypherchat.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.channels = &ChannelRepo{db: db}
	s.messages = &MessageRepo{db: db}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		channel_id TEXT NOT NULL,
		author_identity TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel_seq ON messages(channel_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Channels() repository.ChannelRepository { return s.channels }
func (s *Store) Messages() repository.MessageRepository { return s.messages }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type ChannelRepo struct {
	db *sql.DB
}

func (r *ChannelRepo) List(ctx context.Context) ([]domain.Channel, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, kind, created_at FROM channels ORDER BY seq`)
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
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channels (id, name, kind, created_at)
		VALUES (?, ?, ?, ?)
	`, ch.ID, ch.Name, string(ch.Kind), ch.CreatedAt)
	return err
}

func (r *ChannelRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type MessageRepo struct {
	db *sql.DB
}

func (r *MessageRepo) ListAll(ctx context.Context) (map[string][]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, channel_id, author_identity, text, created_at
		FROM messages ORDER BY channel_id, seq
	`)
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
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, author_identity, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ChannelID, msg.AuthorIdentity, msg.Text, msg.Timestamp)
	return err
}

func (r *MessageRepo) DeleteByChannel(ctx context.Context, channelID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, channelID)
	return err
}
