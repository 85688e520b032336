package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/markdave123-py/Homedex/internal/models"
	"github.com/markdave123-py/Homedex/internal/services"
)

type Answerer interface {
	Answer(ctx context.Context, question, deviceID, room string) (*models.ChatAnswer, error)
}

type ChatHandler struct {
	chat Answerer
}

func NewChatHandler(chat Answerer) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type ChatRequest struct {
	Message   string `json:"message"`
	DeviceID  string `json:"device_id"`
	Room      string `json:"room"`
	SessionID string `json:"session_id"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	answer, err := h.chat.Answer(r.Context(), req.Message, req.DeviceID, req.Room)
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "Message cannot be empty")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
