package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verifai-labs/verifai/internal/models"
	"github.com/verifai-labs/verifai/internal/services"
)

type PatternHandler struct {
	svc *services.PatternService
}

func NewPatternHandler(svc *services.PatternService) *PatternHandler {
	return &PatternHandler{svc: svc}
}

func (h *PatternHandler) List(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.svc.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if patterns == nil {
		patterns = []models.FraudPattern{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(patterns)
}

// Upsert creates or replaces one fraud pattern and re-embeds it, so new
// descriptions are matchable immediately.
func (h *PatternHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var p models.FraudPattern
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	p.ID = chi.URLParam(r, "id")

	if err := h.svc.Upsert(r.Context(), &p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}
