package models

import (
	"time"
)

// DocumentType is the kind of identity document under verification.
type DocumentType string

const (
	DocTypePassport       DocumentType = "passport"
	DocTypeDriversLicense DocumentType = "drivers_license"
	DocTypeNationalID     DocumentType = "national_id"
)

// Valid reports whether t is one of the supported document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypePassport, DocTypeDriversLicense, DocTypeNationalID:
		return true
	}
	return false
}

// VerificationStatus is the analyst-visible status of a verification.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusInReview VerificationStatus = "in_review"
	StatusApproved VerificationStatus = "approved"
	StatusRejected VerificationStatus = "rejected"
)

// RiskLevel is the coarse categorization of a risk score against the
// configured thresholds.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// BoundingBox locates an extracted field on the document image, in
// percent of image dimensions.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OcrField is one field extracted from the document. Confidence is
// 0-100. BoundingBox is optional; overlays must tolerate its absence.
type OcrField struct {
	FieldName   string       `json:"fieldName"`
	Value       string       `json:"value"`
	Confidence  int          `json:"confidence"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
}

// RiskInsight is one finding recorded during the verification workflow.
// Insights are append-only; they are never removed from a record.
type RiskInsight struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // low | medium | high
}

// Insight categories produced by the workflow.
const (
	InsightOcrQuality      = "ocr_quality"
	InsightFraudPattern    = "fraud_pattern"
	InsightDataConsistency = "data_consistency"
	InsightSystem          = "system"
)

// ValidationResult compares a customer-submitted value against the
// extracted value for one field.
type ValidationResult struct {
	FieldName      string `json:"fieldName"`
	SubmittedValue string `json:"submittedValue"`
	ExtractedValue string `json:"extractedValue"`
	IsMatch        bool   `json:"isMatch"`
}

// WorkflowPhase tracks a verification's progress through the automated
// pipeline. The status column stays analyst-facing; phase is internal.
type WorkflowPhase string

const (
	PhaseCreated           WorkflowPhase = "created"
	PhaseOcrAnalyzed       WorkflowPhase = "ocr_analyzed"
	PhaseFraudChecked      WorkflowPhase = "fraud_checked"
	PhaseSimilarityChecked WorkflowPhase = "similarity_checked"
	PhaseComplianceChecked WorkflowPhase = "compliance_checked"
	PhaseRecommended       WorkflowPhase = "recommended"
	PhaseAutoApproved      WorkflowPhase = "auto_approved"
	PhaseAutoRejected      WorkflowPhase = "auto_rejected"
	PhaseManualReview      WorkflowPhase = "pending_manual_review"
)

// Terminal reports whether the automated pipeline is done with this phase.
func (p WorkflowPhase) Terminal() bool {
	switch p {
	case PhaseAutoApproved, PhaseAutoRejected, PhaseManualReview:
		return true
	}
	return false
}

// Verification is one uploaded document moving through (or past) the
// verification pipeline.
type Verification struct {
	ID                string             `db:"id" json:"id"`
	DocumentType      DocumentType       `db:"document_type" json:"documentType"`
	DocumentURL       string             `db:"document_url" json:"documentUrl"`
	Status            VerificationStatus `db:"status" json:"status"`
	Phase             WorkflowPhase      `db:"phase" json:"-"`
	RiskScore         int                `db:"risk_score" json:"riskScore"`
	RiskLevel         RiskLevel          `db:"risk_level" json:"riskLevel"`
	CustomerName      string             `db:"customer_name" json:"customerName"`
	OcrFields         []OcrField         `db:"ocr_fields" json:"ocrFields"`
	RiskInsights      []RiskInsight      `db:"risk_insights" json:"riskInsights"`
	ValidationResults []ValidationResult `db:"validation_results" json:"validationResults"`
	SubmittedAt       time.Time          `db:"submitted_at" json:"submittedAt"`
	ReviewedAt        *time.Time         `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// FraudPattern is a known document-forgery technique. ConfidenceScore is
// the detection confidence of the pattern itself (0-100), managed
// externally; the workflow treats it as read-only.
type FraudPattern struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	Technique       string    `db:"technique" json:"technique"`
	ConfidenceScore int       `db:"confidence_score" json:"confidenceScore"`
	ExampleBefore   string    `db:"example_before" json:"exampleBefore,omitempty"`
	ExampleAfter    string    `db:"example_after" json:"exampleAfter,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// ChatMessage is one turn in a verification's analyst chat. Messages are
// append-only and strictly ordered by send time.
type ChatMessage struct {
	ID             string    `db:"id" json:"id"`
	VerificationID string    `db:"verification_id" json:"-"`
	Role           string    `db:"role" json:"role"` // "user" or "assistant"
	Content        string    `db:"content" json:"content"`
	Timestamp      time.Time `db:"created_at" json:"timestamp"`
}

// Settings is the process-wide scoring configuration. Replaced wholesale
// via PUT; changes affect only future scoring runs.
type Settings struct {
	AutoApproveThreshold int  `db:"auto_approve_threshold" json:"autoApproveThreshold"`
	HighRiskThreshold    int  `db:"high_risk_threshold" json:"highRiskThreshold"`
	EmailNotifications   bool `db:"email_notifications" json:"emailNotifications"`
	InAppNotifications   bool `db:"in_app_notifications" json:"inAppNotifications"`
	AutoRejectHighRisk   bool `db:"auto_reject_high_risk" json:"autoRejectHighRisk"`
}

// DefaultSettings mirrors the seeded settings row.
func DefaultSettings() Settings {
	return Settings{
		AutoApproveThreshold: 30,
		HighRiskThreshold:    70,
		EmailNotifications:   true,
		InAppNotifications:   true,
		AutoRejectHighRisk:   false,
	}
}

// AuditEvent records an analyst decision or other notable action on a
// verification.
type AuditEvent struct {
	ID             string    `db:"id" json:"id"`
	VerificationID string    `db:"verification_id" json:"verificationId"`
	Action         string    `db:"action" json:"action"`
	Actor          string    `db:"actor" json:"actor"`
	Detail         string    `db:"detail" json:"detail"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Analyst is an authenticated compliance analyst.
type Analyst struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
