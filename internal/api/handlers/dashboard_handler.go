package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/models"
)

type DashboardHandler struct {
	dbclient core.DbClient
}

func NewDashboardHandler(dbclient core.DbClient) *DashboardHandler {
	return &DashboardHandler{dbclient: dbclient}
}

type dashboardResponse struct {
	TotalVerifications  int                   `json:"totalVerifications"`
	AutoApprovalRate    int                   `json:"autoApprovalRate"`
	PendingReview       int                   `json:"pendingReview"`
	HighRiskFlags       int                   `json:"highRiskFlags"`
	RecentVerifications []models.Verification `json:"recentVerifications"`
}

// Summary is a pure read projection over the verification store.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	list, err := h.dbclient.ListVerifications(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := dashboardResponse{
		TotalVerifications:  len(list),
		RecentVerifications: []models.Verification{},
	}

	approved := 0
	for _, v := range list {
		switch v.Status {
		case models.StatusApproved:
			approved++
		case models.StatusPending, models.StatusInReview:
			resp.PendingReview++
		}
		if v.RiskLevel == models.RiskHigh {
			resp.HighRiskFlags++
		}
	}
	if len(list) > 0 {
		resp.AutoApprovalRate = int(math.Round(float64(approved) / float64(len(list)) * 100))
	}

	// The list is already sorted newest-first by the store.
	if len(list) > 10 {
		list = list[:10]
	}
	resp.RecentVerifications = append(resp.RecentVerifications, list...)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Health is the liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
