package domain

import (
	"time"
)

type Message struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channelId"`
	AuthorIdentity string    `json:"authorIdentity"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}
