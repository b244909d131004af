package ws

import (
	"encoding/json"
	"time"
)

// Event types - Client → Server
const (
	EventTypeJoinChannel   = "join-channel"
	EventTypeLeaveChannel  = "leave-channel"
	EventTypeCreateChannel = "create-channel"
	EventTypeDeleteChannel = "delete-channel"
	EventTypeSendMessage   = "send-message"
	EventTypeTyping        = "typing"
	EventTypeStopTyping    = "stop-typing"
)

// Event types - Server → Client
const (
	EventTypeChannelsList    = "channels-list"
	EventTypeChannelMessages = "channel-messages"
	EventTypeChannelCreated  = "channel-created"
	EventTypeChannelDeleted  = "channel-deleted"
	EventTypeReceiveMessage  = "receive-message"
	EventTypeUserJoined      = "user-joined"
	EventTypeUserLeft        = "user-left"
	EventTypeUserTyping      = "user-typing"
	EventTypeUserStopTyping  = "user-stop-typing"
	EventTypeError           = "error"
)

// Event is the envelope for every frame in both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Client → Server payloads ---

type CreateChannelPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	// Type is accepted as an alias of Kind.
	Type string `json:"type"`
}

type SendMessagePayload struct {
	ChannelID string `json:"channelId"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
}

type TypingPayload struct {
	ChannelID string `json:"channelId"`
	Username  string `json:"username"`
}

// --- Server → Client payloads ---

type PresencePayload struct {
	Identity  string    `json:"identity"`
	ChannelID string    `json:"channelId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTypingPayload struct {
	Identity  string `json:"identity"`
	ChannelID string `json:"channelId"`
	Username  string `json:"username,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEvent wraps payload in an envelope.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, Payload: data}, nil
}

func encodeEvent(eventType string, payload any) ([]byte, error) {
	evt, err := NewEvent(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(evt)
}
