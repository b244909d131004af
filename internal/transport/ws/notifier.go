package ws

import (
	"github.com/vedran77/cypherchat/internal/domain"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyChannelCreated(ch domain.Channel, channels []domain.Channel) {
	n.hub.ToAll(EventTypeChannelsList, channels)
	n.hub.ToAll(EventTypeChannelCreated, ch)
}

// NotifyChannelDeleted tells every connection, joined or not, and then
// removes the channel from all joined sets.
func (n *HubNotifier) NotifyChannelDeleted(channelID string, channels []domain.Channel) {
	n.hub.ToAll(EventTypeChannelsList, channels)
	n.hub.ToChannelIncludingAbsent(channelID, EventTypeChannelDeleted, channelID)
	n.hub.Registry().Evict(channelID)
}

func (n *HubNotifier) NotifyNewMessage(msg *domain.Message) {
	n.hub.ToChannel(msg.ChannelID, EventTypeReceiveMessage, msg, "")
}
