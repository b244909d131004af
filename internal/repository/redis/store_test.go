package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
)

// Set TEST_REDIS_URL (e.g. redis://localhost:6379/15) to run these tests.
// The selected database is flushed.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	ctx := context.Background()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("FlushDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChannelOrderAndDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"general", "announcements", "random"} {
		if err := s.Channels().Create(ctx, &domain.Channel{ID: id, Name: id, Kind: domain.ChannelKindText, CreatedAt: now}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	if err := s.Channels().Create(ctx, &domain.Channel{ID: "general", Name: "dup", Kind: domain.ChannelKindText, CreatedAt: now}); !errors.Is(err, errDuplicateChannel) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := s.Channels().Delete(ctx, "announcements"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Channels().Delete(ctx, "announcements"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	channels, err := s.Channels().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(channels) != 2 || channels[0].ID != "general" || channels[1].ID != "random" {
		t.Fatalf("unexpected channels: %+v", channels)
	}
	if channels[0].Name != "general" {
		t.Errorf("duplicate create overwrote name: %q", channels[0].Name)
	}
}

func TestMessageLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, text := range []string{"one", "two"} {
		msg := &domain.Message{ID: text, ChannelID: "general", AuthorIdentity: "A", Text: text, Timestamp: time.Unix(int64(i), 0).UTC()}
		if err := s.Messages().Append(ctx, msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Messages().Append(ctx, &domain.Message{ID: "x", ChannelID: "gone", Text: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Messages().DeleteByChannel(ctx, "gone"); err != nil {
		t.Fatalf("DeleteByChannel: %v", err)
	}

	logs, err := s.Messages().ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 channel log, got %d", len(logs))
	}
	got := logs["general"]
	if len(got) != 2 || got[0].Text != "one" || got[1].Text != "two" {
		t.Fatalf("unexpected log: %+v", got)
	}
}
