// Package redis keeps channels and message logs in Redis lists and hashes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/repository"
)

const (
	channelsKey        = "cypherchat:channels"
	channelOrderKey    = "cypherchat:channel-order"
	messageChannelsKey = "cypherchat:message-channels"
)

var errDuplicateChannel = errors.New("channel already stored")

func messagesKey(channelID string) string {
	return fmt.Sprintf("cypherchat:messages:%s", channelID)
}

// Store handles Redis operations for channels and messages.
type Store struct {
	client   *redis.Client
	channels *ChannelRepo
	messages *MessageRepo
}

// Open connects to redisURL and verifies the connection.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Store{
		client:   client,
		channels: &ChannelRepo{client: client},
		messages: &MessageRepo{client: client},
	}, nil
}

func (s *Store) Channels() repository.ChannelRepository { return s.channels }
func (s *Store) Messages() repository.MessageRepository { return s.messages }

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

type ChannelRepo struct {
	client *redis.Client
}

func (r *ChannelRepo) List(ctx context.Context) ([]domain.Channel, error) {
	ids, err := r.client.LRange(ctx, channelOrderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := r.client.HMGet(ctx, channelsKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	channels := make([]domain.Channel, 0, len(ids))
	for _, v := range raw {
		data, ok := v.(string)
		if !ok {
			// order entry without a record, left behind by an interrupted delete
			continue
		}
		var ch domain.Channel
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	added, err := r.client.HSetNX(ctx, channelsKey, ch.ID, data).Result()
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: %s", errDuplicateChannel, ch.ID)
	}
	return r.client.RPush(ctx, channelOrderKey, ch.ID).Err()
}

func (r *ChannelRepo) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.HDel(ctx, channelsKey, id)
		pipe.LRem(ctx, channelOrderKey, 0, id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type MessageRepo struct {
	client *redis.Client
}

func (r *MessageRepo) ListAll(ctx context.Context) (map[string][]domain.Message, error) {
	channelIDs, err := r.client.SMembers(ctx, messageChannelsKey).Result()
	if err != nil {
		return nil, err
	}

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StringSliceCmd, len(channelIDs))
	for _, id := range channelIDs {
		cmds[id] = pipe.LRange(ctx, messagesKey(id), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	logs := make(map[string][]domain.Message, len(channelIDs))
	for id, cmd := range cmds {
		entries := cmd.Val()
		if len(entries) == 0 {
			continue
		}
		msgs := make([]domain.Message, 0, len(entries))
		for _, entry := range entries {
			var msg domain.Message
			if err := json.Unmarshal([]byte(entry), &msg); err != nil {
				return nil, err
			}
			msgs = append(msgs, msg)
		}
		logs[id] = msgs
	}
	return logs, nil
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, messagesKey(msg.ChannelID), data)
		pipe.SAdd(ctx, messageChannelsKey, msg.ChannelID)
		return nil
	})
	return err
}

func (r *MessageRepo) DeleteByChannel(ctx context.Context, channelID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, messagesKey(channelID))
		pipe.SRem(ctx, messageChannelsKey, channelID)
		return nil
	})
	return err
}
