package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
	"github.com/vedran77/cypherchat/internal/repository/file"
)

type recordingNotifier struct {
	mu       sync.Mutex
	created  []string
	deleted  []string
	messages []domain.Message
	lists    [][]domain.Channel
}

func (n *recordingNotifier) NotifyChannelCreated(ch domain.Channel, channels []domain.Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, ch.ID)
	n.lists = append(n.lists, channels)
}

func (n *recordingNotifier) NotifyChannelDeleted(channelID string, channels []domain.Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, channelID)
	n.lists = append(n.lists, channels)
}

func (n *recordingNotifier) NotifyNewMessage(msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, *msg)
}

type services struct {
	channels *ChannelService
	messages *MessageService
	notifier *recordingNotifier
}

func newServices(t *testing.T, store repository.Store) services {
	t.Helper()
	logger := zerolog.Nop()
	channels := NewChannelService(store.Channels(), "test", logger)
	messages := NewMessageService(store.Messages(), "test", logger)
	notifier := &recordingNotifier{}
	channels.SetMessageLog(messages)
	channels.SetNotifier(notifier)
	messages.SetNotifier(notifier)

	ctx := context.Background()
	if err := channels.Load(ctx); err != nil {
		t.Fatalf("channels.Load: %v", err)
	}
	if err := messages.Load(ctx, channelIDs(channels.List())); err != nil {
		t.Fatalf("messages.Load: %v", err)
	}
	return services{channels: channels, messages: messages, notifier: notifier}
}

func openFileStore(t *testing.T, dir string) *file.Store {
	t.Helper()
	store, err := file.Open(dir)
	if err != nil {
		t.Fatalf("file.Open: %v", err)
	}
	return store
}

func channelIDs(channels []domain.Channel) []string {
	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}
	return ids
}

func TestLoadSeedsDefaultsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	svc := newServices(t, openFileStore(t, dir))

	got := channelIDs(svc.channels.List())
	if len(got) != 3 || got[0] != "general" || got[1] != "random" || got[2] != "dev-talk" {
		t.Fatalf("unexpected channels: %v", got)
	}

	// defaults were written, so a second start does not reseed
	stored, err := openFileStore(t, dir).Channels().List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored channels, got %d", len(stored))
	}
}

func TestLoadRestoresMissingDefaults(t *testing.T) {
	dir := t.TempDir()
	store := openFileStore(t, dir)
	ctx := context.Background()
	for _, id := range []string{"random", "ann"} {
		if err := store.Channels().Create(ctx, &domain.Channel{ID: id, Name: id, Kind: domain.ChannelKindText}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	svc := newServices(t, openFileStore(t, dir))
	got := channelIDs(svc.channels.List())
	want := []string{"random", "ann", "general", "dev-talk"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestDeleteDefaultChannelIsProtected(t *testing.T) {
	svc := newServices(t, openFileStore(t, t.TempDir()))

	for _, id := range domain.DefaultChannelIDs {
		t.Run(id, func(t *testing.T) {
			if err := svc.channels.Delete(context.Background(), id); !errors.Is(err, ErrProtectedChannel) {
				t.Fatalf("expected ErrProtectedChannel, got %v", err)
			}
			if len(svc.channels.List()) != 3 {
				t.Fatal("channel list changed")
			}
		})
	}
	if len(svc.notifier.deleted) != 0 {
		t.Errorf("expected no delete notifications, got %v", svc.notifier.deleted)
	}
}

func TestCreateDuplicate(t *testing.T) {
	svc := newServices(t, openFileStore(t, t.TempDir()))
	ctx := context.Background()

	ch, err := svc.channels.Create(ctx, "ann", "Announcements", "voice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ch.Kind != domain.ChannelKindText {
		t.Errorf("expected kind text, got %q", ch.Kind)
	}
	if _, err := svc.channels.Create(ctx, "ann", "Again", "text"); !errors.Is(err, ErrDuplicateChannel) {
		t.Fatalf("expected ErrDuplicateChannel, got %v", err)
	}

	count := 0
	for _, c := range svc.channels.List() {
		if c.ID == "ann" {
			count++
			if c.Name != "Announcements" {
				t.Errorf("duplicate create overwrote name: %q", c.Name)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one ann channel, got %d", count)
	}
	if len(svc.notifier.created) != 1 {
		t.Errorf("expected one created notification, got %v", svc.notifier.created)
	}

	replay, err := svc.messages.Replay("ann")
	if err != nil || replay == nil || len(replay) != 0 {
		t.Fatalf("expected empty log for new channel, got %v, %v", replay, err)
	}
}

func TestAppendReplayOrder(t *testing.T) {
	svc := newServices(t, openFileStore(t, t.TempDir()))
	ctx := context.Background()

	// clock steps backwards after the second message
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute), base.Add(2 * time.Second)}
	i := 0
	svc.messages.now = func() time.Time {
		ts := clock[i]
		i++
		return ts
	}

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		msg, err := svc.messages.Append(ctx, "general", "A", text)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if msg.AuthorIdentity != "A" || msg.ChannelID != "general" || msg.ID == "" {
			t.Fatalf("message not enriched: %+v", msg)
		}
	}

	got, err := svc.messages.Replay("general")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != len(texts) {
		t.Fatalf("expected %d messages, got %d", len(texts), len(got))
	}
	for i := range texts {
		if got[i].Text != texts[i] {
			t.Errorf("position %d: expected %q, got %q", i, texts[i], got[i].Text)
		}
		if i > 0 && got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("timestamp decreased at %d", i)
		}
	}
	if len(svc.notifier.messages) != len(texts) {
		t.Errorf("expected %d message notifications, got %d", len(texts), len(svc.notifier.messages))
	}
}

func TestAppendUnknownChannel(t *testing.T) {
	svc := newServices(t, openFileStore(t, t.TempDir()))

	if _, err := svc.messages.Append(context.Background(), "nope", "A", "hi"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
	if _, err := svc.messages.Replay("nope"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestDeleteDropsLog(t *testing.T) {
	dir := t.TempDir()
	svc := newServices(t, openFileStore(t, dir))
	ctx := context.Background()

	if _, err := svc.channels.Create(ctx, "ann", "ann", "text"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.messages.Append(ctx, "ann", "A", "hi"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := svc.channels.Delete(ctx, "ann"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.channels.Delete(ctx, "ann"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
	if svc.channels.Exists("ann") {
		t.Fatal("channel still listed")
	}
	if _, err := svc.messages.Replay("ann"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected dropped log, got %v", err)
	}
	if len(svc.notifier.deleted) != 1 || svc.notifier.deleted[0] != "ann" {
		t.Fatalf("expected delete notification, got %v", svc.notifier.deleted)
	}

	// recreating the id starts from an empty history, also after a restart
	if _, err := svc.channels.Create(ctx, "ann", "ann", "text"); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	reloaded := newServices(t, openFileStore(t, dir))
	replay, err := reloaded.messages.Replay("ann")
	if err != nil || len(replay) != 0 {
		t.Fatalf("expected empty history after recreate, got %v, %v", replay, err)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	svc := newServices(t, openFileStore(t, dir))
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		if _, err := svc.messages.Append(ctx, "random", "A", text); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reloaded := newServices(t, openFileStore(t, dir))
	got, err := reloaded.messages.Replay("random")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 2 || got[0].Text != "a" || got[1].Text != "b" {
		t.Fatalf("unexpected history: %+v", got)
	}

	// appends after a restart never go behind the restored tail
	reloaded.messages.now = func() time.Time { return got[1].Timestamp.Add(-time.Hour) }
	msg, err := reloaded.messages.Append(ctx, "random", "B", "c")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if msg.Timestamp.Before(got[1].Timestamp) {
		t.Fatal("timestamp went backwards across restart")
	}
}

var errDiskFull = errors.New("disk full")

type failingStore struct{}

func (failingStore) Channels() repository.ChannelRepository { return failingChannels{} }
func (failingStore) Messages() repository.MessageRepository { return failingMessages{} }
func (failingStore) Ping(context.Context) error             { return errDiskFull }
func (failingStore) Close() error                           { return nil }

type failingChannels struct{}

func (failingChannels) List(context.Context) ([]domain.Channel, error) { return nil, errDiskFull }
func (failingChannels) Create(context.Context, *domain.Channel) error  { return errDiskFull }
func (failingChannels) Delete(context.Context, string) error           { return errDiskFull }

type failingMessages struct{}

func (failingMessages) ListAll(context.Context) (map[string][]domain.Message, error) {
	return nil, errDiskFull
}
func (failingMessages) Append(context.Context, *domain.Message) error { return errDiskFull }
func (failingMessages) DeleteByChannel(context.Context, string) error { return errDiskFull }

func TestPersistenceFailureKeepsInMemoryState(t *testing.T) {
	logger := zerolog.Nop()
	store := failingStore{}
	channels := NewChannelService(store.Channels(), "test", logger)
	messages := NewMessageService(store.Messages(), "test", logger)
	notifier := &recordingNotifier{}
	channels.SetMessageLog(messages)
	channels.SetNotifier(notifier)
	messages.SetNotifier(notifier)
	ctx := context.Background()

	// unreadable storage falls back to the defaults
	if err := channels.Load(ctx); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence from seeding, got %v", err)
	}
	if len(channels.List()) != 3 {
		t.Fatalf("expected defaults, got %v", channels.List())
	}
	if err := messages.Load(ctx, channelIDs(channels.List())); err != nil {
		t.Fatalf("messages.Load: %v", err)
	}

	ch, err := channels.Create(ctx, "ann", "ann", "text")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if ch.ID != "ann" || !channels.Exists("ann") {
		t.Fatal("channel not kept in memory after failed write")
	}

	msg, err := messages.Append(ctx, "ann", "A", "hi")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if msg.Text != "hi" {
		t.Fatalf("expected stored message returned, got %+v", msg)
	}
	replay, _ := messages.Replay("ann")
	if len(replay) != 1 {
		t.Fatalf("expected message kept in memory, got %d", len(replay))
	}
	if len(notifier.created) != 1 || len(notifier.messages) != 1 {
		t.Fatal("changes were not broadcast after failed write")
	}

	if err := channels.Delete(ctx, "ann"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if channels.Exists("ann") {
		t.Fatal("channel kept after delete")
	}
}

func TestSubscribeSeesHistoryThenLive(t *testing.T) {
	svc := newServices(t, openFileStore(t, t.TempDir()))
	ctx := context.Background()

	if _, err := svc.messages.Append(ctx, "general", "A", "before"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var history []domain.Message
	err := svc.messages.Subscribe("general", func(h []domain.Message) {
		history = h
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(history) != 1 || history[0].Text != "before" {
		t.Fatalf("unexpected history: %+v", history)
	}

	if err := svc.messages.Subscribe("missing", func([]domain.Message) {
		t.Fatal("callback ran for unknown channel")
	}); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}
