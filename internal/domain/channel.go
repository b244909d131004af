package domain

import (
	"time"
)

type ChannelKind string

const ChannelKindText ChannelKind = "text"

type Channel struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	CreatedAt time.Time   `json:"createdAt"`
}

// DefaultChannelIDs are seeded at startup and can never be deleted.
var DefaultChannelIDs = []string{"general", "random", "dev-talk"}

// IsDefaultChannel reports whether id names one of the seeded channels.
func IsDefaultChannel(id string) bool {
	for _, d := range DefaultChannelIDs {
		if d == id {
			return true
		}
	}
	return false
}

// DefaultChannels builds the seeded channel set stamped with now.
func DefaultChannels(now time.Time) []Channel {
	channels := make([]Channel, 0, len(DefaultChannelIDs))
	for _, id := range DefaultChannelIDs {
		channels = append(channels, Channel{
			ID:        id,
			Name:      id,
			Kind:      ChannelKindText,
			CreatedAt: now,
		})
	}
	return channels
}

// NormalizeKind maps any requested kind to text, the only kind the relay carries.
func NormalizeKind(string) ChannelKind {
	return ChannelKindText
}
