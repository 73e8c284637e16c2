package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/verifai-labs/verifai/internal/api/middlewares"
	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
	"github.com/verifai-labs/verifai/internal/services"
)

type VerificationHandler struct {
	svc *services.VerificationService
}

func NewVerificationHandler(svc *services.VerificationService) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// Create handles the multipart document upload and runs the full
// verification pipeline before responding. The response is always a
// complete record; degraded steps show up as insights, not errors.
func (h *VerificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		http.Error(w, "no document provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		http.Error(w, "empty document", http.StatusBadRequest)
		return
	}

	req := services.CreateRequest{
		Document:     data,
		MimeType:     header.Header.Get("Content-Type"),
		FileName:     header.Filename,
		DocumentType: models.DocumentType(r.FormValue("documentType")),
	}

	// Optional customer-submitted values, as a JSON object of
	// fieldName -> value, checked by the compliance step.
	if raw := r.FormValue("submittedFields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Submitted); err != nil {
			http.Error(w, "submittedFields must be a JSON object", http.StatusBadRequest)
			return
		}
	}

	v, err := h.svc.Create(r.Context(), req)
	if err != nil {
		log.Printf("create verification failed: %v", err)
		http.Error(w, "verification could not be created", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(v)
}

func (h *VerificationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []models.Verification{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *VerificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, verr.ErrNotFound) {
			http.Error(w, "verification not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type decisionRequest struct {
	Status models.VerificationStatus `json:"status"`
}

// Decide applies an analyst approve/reject to a verification awaiting
// manual review.
func (h *VerificationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	actor, _ := middleware.AnalystID(r.Context())

	v, err := h.svc.Decide(r.Context(), chi.URLParam(r, "id"), req.Status, actor)
	if err != nil {
		if errors.Is(err, verr.ErrNotFound) {
			http.Error(w, "verification not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *VerificationHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.AuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
