package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vedran77/cypherchat/internal/service"
)

// ChannelHandler serves read-only views of channels and their history.
// Mutations go through the WebSocket gateway.
type ChannelHandler struct {
	channelService *service.ChannelService
	messageService *service.MessageService
	logger         zerolog.Logger
}

func NewChannelHandler(channelService *service.ChannelService, messageService *service.MessageService, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{
		channelService: channelService,
		messageService: messageService,
		logger:         logger,
	}
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.channelService.List())
}

func (h *ChannelHandler) Messages(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	messages, err := h.messageService.Replay(channelID)
	if err != nil {
		if errors.Is(err, service.ErrChannelNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		} else {
			h.logger.Error().Err(err).Str("channel_id", channelID).Msg("replay failed")
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, messages)
}
