package service

import (
	"errors"

	"github.com/vedran77/cypherchat/internal/domain"
	"github.com/vedran77/cypherchat/internal/presence"
)

var (
	ErrAuthenticationRejected = presence.ErrRejected
	ErrDuplicateChannel       = errors.New("channel already exists")
	ErrChannelNotFound        = errors.New("channel not found")
	ErrProtectedChannel       = errors.New("cannot delete default channels")
	ErrPersistence            = errors.New("persistence failure")
)

// Notifier broadcasts state changes to connected clients.
type Notifier interface {
	NotifyChannelCreated(ch domain.Channel, channels []domain.Channel)
	NotifyChannelDeleted(channelID string, channels []domain.Channel)
	NotifyNewMessage(msg *domain.Message)
}
