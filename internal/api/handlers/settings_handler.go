package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/models"
)

type SettingsHandler struct {
	dbclient core.DbClient
}

func NewSettingsHandler(dbclient core.DbClient) *SettingsHandler {
	return &SettingsHandler{dbclient: dbclient}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.dbclient.GetSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

// Replace overwrites the whole settings object. Changed thresholds apply
// to future scoring runs only; existing records keep their levels.
func (h *SettingsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var s models.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if s.AutoApproveThreshold < 0 || s.AutoApproveThreshold > 100 ||
		s.HighRiskThreshold < 0 || s.HighRiskThreshold > 100 {
		http.Error(w, "thresholds must be within 0-100", http.StatusBadRequest)
		return
	}

	if err := h.dbclient.ReplaceSettings(r.Context(), &s); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
