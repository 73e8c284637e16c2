package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
	"github.com/verifai-labs/verifai/internal/services"
)

type ChatHandler struct {
	svc *services.ChatService
}

func NewChatHandler(svc *services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, verr.ErrNotFound) {
			http.Error(w, "verification not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []models.ChatMessage{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

type chatRequest struct {
	Content string `json:"content"`
}

// Send runs one chat turn. On generation failure the user's question is
// already persisted, so the client can simply retry.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "message content required", http.StatusBadRequest)
		return
	}

	msg, err := h.svc.Respond(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, verr.ErrNotFound):
			http.Error(w, "verification not found", http.StatusNotFound)
		case errors.Is(err, verr.ErrChatGeneration):
			http.Error(w, "assistant unavailable, please retry", http.StatusBadGateway)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msg)
}
