package core

import (
	"context"
	"time"

	"github.com/verifai-labs/verifai/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a
// specific DB.
type DbClient interface {
	CreateAnalyst(ctx context.Context, analyst *models.Analyst) error
	GetAnalystByEmail(ctx context.Context, email string) (*models.Analyst, error)

	CreateVerification(ctx context.Context, v *models.Verification) error
	GetVerificationByID(ctx context.Context, id string) (*models.Verification, error)
	ListVerifications(ctx context.Context) ([]models.Verification, error)

	// ClaimWorkflow atomically moves a verification out of the created
	// phase. It returns verr.ErrWorkflowConflict when the verification is
	// not in the created phase, which is how exclusive ownership of a
	// workflow run is enforced.
	ClaimWorkflow(ctx context.Context, id string) error

	// UpdateVerificationAnalysis writes the workflow's accumulated result
	// in one atomic statement.
	UpdateVerificationAnalysis(ctx context.Context, v *models.Verification) error

	// UpdateVerificationStatus applies an analyst decision. reviewedAt is
	// set on the first approve/reject and never overwritten.
	UpdateVerificationStatus(ctx context.Context, id string, status models.VerificationStatus, reviewedAt time.Time) (*models.Verification, error)

	AppendChatMessage(ctx context.Context, msg *models.ChatMessage) error
	GetChatHistory(ctx context.Context, verificationID string) ([]models.ChatMessage, error)

	GetFraudPatternByID(ctx context.Context, id string) (*models.FraudPattern, error)
	ListFraudPatterns(ctx context.Context) ([]models.FraudPattern, error)
	UpsertFraudPattern(ctx context.Context, p *models.FraudPattern) error

	GetSettings(ctx context.Context) (*models.Settings, error)
	ReplaceSettings(ctx context.Context, s *models.Settings) error

	RecordAuditEvent(ctx context.Context, e *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, verificationID string) ([]models.AuditEvent, error)
}

// Vector index namespaces. Each grows independently; queries never cross.
const (
	NamespaceDocuments     = "documents"
	NamespaceFraudPatterns = "fraud_patterns"
)

// Match is one nearest-neighbor result. Similarity is cosine similarity
// normalized to [0,1].
type Match struct {
	ID         string
	Similarity float64
}

// VectorIndex is the nearest-neighbor store over embedded verification
// summaries and fraud-pattern descriptions. Results come back sorted by
// descending similarity. Documents are append-only; pattern updates go
// through upsert-by-id.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace, id string, embedding []float32) error
	Query(ctx context.Context, namespace string, embedding []float32, k int) ([]Match, error)
}
