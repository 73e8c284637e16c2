package services

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	objectclient "github.com/verifai-labs/verifai/internal/core/object-client"
	"github.com/verifai-labs/verifai/internal/core/workflow"
	"github.com/verifai-labs/verifai/internal/models"
)

// WorkflowRunner is the verification pipeline as this service sees it.
type WorkflowRunner interface {
	Run(ctx context.Context, st *workflow.State) error
}

// VerificationStore is the slice of the persistence layer this service
// touches.
type VerificationStore interface {
	CreateVerification(ctx context.Context, v *models.Verification) error
	GetVerificationByID(ctx context.Context, id string) (*models.Verification, error)
	ListVerifications(ctx context.Context) ([]models.Verification, error)
	UpdateVerificationStatus(ctx context.Context, id string, status models.VerificationStatus, reviewedAt time.Time) (*models.Verification, error)
	RecordAuditEvent(ctx context.Context, e *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, verificationID string) ([]models.AuditEvent, error)
}

// VerificationService handles document intake: blob storage, record
// creation and the synchronous workflow run.
type VerificationService struct {
	db     VerificationStore
	obj    objectclient.ObjectClient
	engine WorkflowRunner
}

func NewVerificationService(db VerificationStore, obj objectclient.ObjectClient, engine WorkflowRunner) *VerificationService {
	return &VerificationService{db: db, obj: obj, engine: engine}
}

// CreateRequest carries one uploaded document into the pipeline.
type CreateRequest struct {
	Document     []byte
	MimeType     string
	FileName     string
	DocumentType models.DocumentType
	// Customer-provided values checked against the extracted ones.
	Submitted map[string]string
}

// Create stores the document, inserts the verification record and runs
// the workflow to a terminal state. Capability failures inside the
// workflow degrade into insights; the caller always gets a record back
// unless persistence itself fails.
func (s *VerificationService) Create(ctx context.Context, req CreateRequest) (*models.Verification, error) {
	if len(req.Document) == 0 {
		return nil, fmt.Errorf("no document provided")
	}

	docType := req.DocumentType
	if !docType.Valid() {
		docType = DetectDocumentType(req.FileName)
	}

	v := &models.Verification{
		ID:           uuid.NewString(),
		DocumentType: docType,
		Status:       models.StatusPending,
		Phase:        models.PhaseCreated,
		RiskLevel:    models.RiskLow,
		SubmittedAt:  time.Now().UTC(),
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key := fmt.Sprintf("verifications/%s/%s", v.ID, filepath.Base(req.FileName))
	url, err := s.obj.UploadDocument(ctx, key, req.Document, mimeType)
	if err != nil {
		// Blob storage being down must not block intake; the record just
		// carries no document URL and notes the degradation.
		log.Printf("verification %s: document upload failed: %v", v.ID, err)
		v.RiskInsights = append(v.RiskInsights, models.RiskInsight{
			Category:    models.InsightSystem,
			Description: "Document blob could not be stored; original upload unavailable for review",
			Severity:    "medium",
		})
	} else {
		v.DocumentURL = url
	}

	if err := s.db.CreateVerification(ctx, v); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}

	st := &workflow.State{
		Verification: v,
		Document:     req.Document,
		MimeType:     mimeType,
		Submitted:    req.Submitted,
	}
	if err := s.engine.Run(ctx, st); err != nil {
		return nil, fmt.Errorf("run workflow: %w", err)
	}

	return v, nil
}

func (s *VerificationService) Get(ctx context.Context, id string) (*models.Verification, error) {
	return s.db.GetVerificationByID(ctx, id)
}

func (s *VerificationService) List(ctx context.Context) ([]models.Verification, error) {
	return s.db.ListVerifications(ctx)
}

// Decide applies an analyst decision to a verification awaiting review
// and records it as an audit event.
func (s *VerificationService) Decide(ctx context.Context, id string, status models.VerificationStatus, actor string) (*models.Verification, error) {
	if status != models.StatusApproved && status != models.StatusRejected {
		return nil, fmt.Errorf("invalid decision status %q", status)
	}

	v, err := s.db.UpdateVerificationStatus(ctx, id, status, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	event := &models.AuditEvent{
		ID:             uuid.NewString(),
		VerificationID: id,
		Action:         "decision_" + string(status),
		Actor:          actor,
		Detail:         fmt.Sprintf("risk score %d (%s)", v.RiskScore, v.RiskLevel),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.RecordAuditEvent(ctx, event); err != nil {
		log.Printf("verification %s: audit event not recorded: %v", id, err)
	}

	return v, nil
}

func (s *VerificationService) AuditTrail(ctx context.Context, id string) ([]models.AuditEvent, error) {
	return s.db.ListAuditEvents(ctx, id)
}

// DetectDocumentType guesses the document type from the uploaded file
// name; the workflow's OCR step may correct it later.
func DetectDocumentType(fileName string) models.DocumentType {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, "passport"):
		return models.DocTypePassport
	case strings.Contains(name, "license") || strings.Contains(name, "dl"):
		return models.DocTypeDriversLicense
	default:
		return models.DocTypeNationalID
	}
}
