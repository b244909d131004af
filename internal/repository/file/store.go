// Package file persists the channel table and the message logs as two JSON
// documents, rewriting the whole document on every mutation.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
)

const (
	channelsFile = "channels.json"
	messagesFile = "messages.json"
)

// Store keeps a copy of both tables so each write can serialize the full document.
type Store struct {
	dir string

	channelsMu sync.Mutex
	channels   []domain.Channel

	messagesMu sync.Mutex
	messages   map[string][]domain.Message

	channelsErr error
	messagesErr error

	channelRepo *ChannelRepo
	messageRepo *MessageRepo
}

// Open prepares dir and loads whatever is already on disk. A missing file is
// treated as empty. A corrupt file does not fail Open: the decode error is kept
// and reported by the first List/ListAll, and the next write replaces the file.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	s := &Store{dir: dir, messages: make(map[string][]domain.Message)}
	s.channelRepo = &ChannelRepo{store: s}
	s.messageRepo = &MessageRepo{store: s}

	var channels []domain.Channel
	if err := s.readJSON(channelsFile, &channels); err != nil {
		s.channelsErr = err
	} else {
		s.channels = channels
	}

	messages := make(map[string][]domain.Message)
	if err := s.readJSON(messagesFile, &messages); err != nil {
		s.messagesErr = err
	} else if messages != nil {
		s.messages = messages
	}
	return s, nil
}

func (s *Store) Channels() repository.ChannelRepository { return s.channelRepo }
func (s *Store) Messages() repository.MessageRepository { return s.messageRepo }

// Ping checks that the data directory is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

func (s *Store) Close() error { return nil }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readJSON decodes name into v. A missing file leaves v untouched.
func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces name atomically: a crash leaves either the old or the new document.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(name))
}

type ChannelRepo struct {
	store *Store
}

func (r *ChannelRepo) List(ctx context.Context) ([]domain.Channel, error) {
	s := r.store
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()

	if err := s.channelsErr; err != nil {
		s.channelsErr = nil
		return nil, err
	}
	return append([]domain.Channel(nil), s.channels...), nil
}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	s := r.store
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()

	for _, existing := range s.channels {
		if existing.ID == ch.ID {
			return fmt.Errorf("channel %q already stored", ch.ID)
		}
	}
	s.channels = append(s.channels, *ch)
	return s.writeJSON(channelsFile, s.channels)
}

func (r *ChannelRepo) Delete(ctx context.Context, id string) error {
	s := r.store
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()

	idx := -1
	for i, ch := range s.channels {
		if ch.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return repository.ErrNotFound
	}
	s.channels = append(s.channels[:idx:idx], s.channels[idx+1:]...)
	return s.writeJSON(channelsFile, s.channels)
}

type MessageRepo struct {
	store *Store
}

func (r *MessageRepo) ListAll(ctx context.Context) (map[string][]domain.Message, error) {
	s := r.store
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	if err := s.messagesErr; err != nil {
		s.messagesErr = nil
		return nil, err
	}

	out := make(map[string][]domain.Message, len(s.messages))
	for id, msgs := range s.messages {
		out[id] = append([]domain.Message(nil), msgs...)
	}
	return out, nil
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	s := r.store
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	s.messages[msg.ChannelID] = append(s.messages[msg.ChannelID], *msg)
	return s.writeJSON(messagesFile, s.messages)
}

func (r *MessageRepo) DeleteByChannel(ctx context.Context, channelID string) error {
	s := r.store
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	delete(s.messages, channelID)
	return s.writeJSON(messagesFile, s.messages)
}
