package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/verifai-labs/verifai/internal/config"
	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Analysts

func (c *DatabaseClient) CreateAnalyst(ctx context.Context, analyst *models.Analyst) error {
	if analyst == nil {
		return errors.New("nil analyst")
	}
	const q = `
		INSERT INTO analysts (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`
	_, err := c.db.ExecContext(ctx, q, analyst.ID, analyst.Email, analyst.PasswordHash, analyst.CreatedAt)
	return err
}

func (c *DatabaseClient) GetAnalystByEmail(ctx context.Context, email string) (*models.Analyst, error) {
	const q = `
		SELECT id, email, password_hash, created_at
		FROM analysts WHERE email = $1
	`
	var a models.Analyst
	err := c.db.QueryRowContext(ctx, q, email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Verifications

const verificationColumns = `
	id, document_type, document_url, status, phase, risk_score, risk_level,
	customer_name, ocr_fields, risk_insights, validation_results,
	submitted_at, reviewed_at
`

func (c *DatabaseClient) CreateVerification(ctx context.Context, v *models.Verification) error {
	if v == nil {
		return errors.New("nil verification")
	}
	ocr, insights, validations, err := marshalDetail(v)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO verifications
			(id, document_type, document_url, status, phase, risk_score, risk_level,
			 customer_name, ocr_fields, risk_insights, validation_results, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()))
	`
	_, err = c.db.ExecContext(ctx, q,
		v.ID, v.DocumentType, v.DocumentURL, v.Status, v.Phase, v.RiskScore, v.RiskLevel,
		v.CustomerName, ocr, insights, validations, v.SubmittedAt)
	return err
}

func (c *DatabaseClient) GetVerificationByID(ctx context.Context, id string) (*models.Verification, error) {
	q := `SELECT ` + verificationColumns + ` FROM verifications WHERE id = $1`
	v, err := scanVerification(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, verr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *DatabaseClient) ListVerifications(ctx context.Context) ([]models.Verification, error) {
	q := `SELECT ` + verificationColumns + ` FROM verifications ORDER BY submitted_at DESC`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ClaimWorkflow is the guarded transition out of the created phase. The
// conditional UPDATE makes the claim atomic: exactly one caller wins.
func (c *DatabaseClient) ClaimWorkflow(ctx context.Context, id string) error {
	const q = `
		UPDATE verifications
		SET phase = $2
		WHERE id = $1 AND phase = $3
	`
	res, err := c.db.ExecContext(ctx, q, id, models.PhaseOcrAnalyzed, models.PhaseCreated)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := c.GetVerificationByID(ctx, id); err != nil {
			return err
		}
		return verr.ErrWorkflowConflict
	}
	return nil
}

// UpdateVerificationAnalysis writes the workflow outcome in a single
// statement, so a concurrent reader never sees a half-applied analysis.
func (c *DatabaseClient) UpdateVerificationAnalysis(ctx context.Context, v *models.Verification) error {
	if v == nil {
		return errors.New("nil verification")
	}
	ocr, insights, validations, err := marshalDetail(v)
	if err != nil {
		return err
	}
	const q = `
		UPDATE verifications
		SET document_type = $2, status = $3, phase = $4, risk_score = $5,
		    risk_level = $6, customer_name = $7, ocr_fields = $8,
		    risk_insights = $9, validation_results = $10,
		    reviewed_at = COALESCE(reviewed_at, $11)
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q,
		v.ID, v.DocumentType, v.Status, v.Phase, v.RiskScore, v.RiskLevel,
		v.CustomerName, ocr, insights, validations, v.ReviewedAt)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return verr.ErrNotFound
	}
	return nil
}

func (c *DatabaseClient) UpdateVerificationStatus(ctx context.Context, id string, status models.VerificationStatus, reviewedAt time.Time) (*models.Verification, error) {
	q := `
		UPDATE verifications
		SET status = $2, reviewed_at = COALESCE(reviewed_at, $3)
		WHERE id = $1 AND status IN ('pending', 'in_review')
		RETURNING ` + verificationColumns
	v, err := scanVerification(c.db.QueryRowContext(ctx, q, id, status, reviewedAt))
	if err == sql.ErrNoRows {
		if _, lookErr := c.GetVerificationByID(ctx, id); lookErr != nil {
			return nil, lookErr
		}
		return nil, fmt.Errorf("verification %s is not awaiting review", id)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Chat

func (c *DatabaseClient) AppendChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("nil chat message")
	}
	const q = `
		INSERT INTO chat_messages (id, verification_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`
	_, err := c.db.ExecContext(ctx, q, msg.ID, msg.VerificationID, msg.Role, msg.Content, msg.Timestamp)
	return err
}

func (c *DatabaseClient) GetChatHistory(ctx context.Context, verificationID string) ([]models.ChatMessage, error) {
	const q = `
		SELECT id, verification_id, role, content, created_at
		FROM chat_messages
		WHERE verification_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := c.db.QueryContext(ctx, q, verificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.VerificationID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Fraud patterns

func (c *DatabaseClient) GetFraudPatternByID(ctx context.Context, id string) (*models.FraudPattern, error) {
	const q = `
		SELECT id, name, description, technique, confidence_score,
		       example_before, example_after, created_at, updated_at
		FROM fraud_patterns WHERE id = $1
	`
	var p models.FraudPattern
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Technique, &p.ConfidenceScore,
		&p.ExampleBefore, &p.ExampleAfter, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *DatabaseClient) ListFraudPatterns(ctx context.Context) ([]models.FraudPattern, error) {
	const q = `
		SELECT id, name, description, technique, confidence_score,
		       example_before, example_after, created_at, updated_at
		FROM fraud_patterns ORDER BY name ASC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FraudPattern
	for rows.Next() {
		var p models.FraudPattern
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Technique, &p.ConfidenceScore,
			&p.ExampleBefore, &p.ExampleAfter, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpsertFraudPattern(ctx context.Context, p *models.FraudPattern) error {
	if p == nil {
		return errors.New("nil fraud pattern")
	}
	const q = `
		INSERT INTO fraud_patterns
			(id, name, description, technique, confidence_score,
			 example_before, example_after, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			technique = EXCLUDED.technique,
			confidence_score = EXCLUDED.confidence_score,
			example_before = EXCLUDED.example_before,
			example_after = EXCLUDED.example_after,
			updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q,
		p.ID, p.Name, p.Description, p.Technique, p.ConfidenceScore,
		p.ExampleBefore, p.ExampleAfter, p.CreatedAt)
	return err
}

// Settings

func (c *DatabaseClient) GetSettings(ctx context.Context) (*models.Settings, error) {
	const q = `
		SELECT auto_approve_threshold, high_risk_threshold,
		       email_notifications, in_app_notifications, auto_reject_high_risk
		FROM settings WHERE id = 1
	`
	var s models.Settings
	err := c.db.QueryRowContext(ctx, q).Scan(
		&s.AutoApproveThreshold, &s.HighRiskThreshold,
		&s.EmailNotifications, &s.InAppNotifications, &s.AutoRejectHighRisk)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReplaceSettings overwrites the singleton row wholesale; there are no
// partial-field update semantics.
func (c *DatabaseClient) ReplaceSettings(ctx context.Context, s *models.Settings) error {
	if s == nil {
		return errors.New("nil settings")
	}
	const q = `
		UPDATE settings
		SET auto_approve_threshold = $1, high_risk_threshold = $2,
		    email_notifications = $3, in_app_notifications = $4,
		    auto_reject_high_risk = $5, updated_at = now()
		WHERE id = 1
	`
	_, err := c.db.ExecContext(ctx, q,
		s.AutoApproveThreshold, s.HighRiskThreshold,
		s.EmailNotifications, s.InAppNotifications, s.AutoRejectHighRisk)
	return err
}

// Audit

func (c *DatabaseClient) RecordAuditEvent(ctx context.Context, e *models.AuditEvent) error {
	if e == nil {
		return errors.New("nil audit event")
	}
	const q = `
		INSERT INTO audit_events (id, verification_id, action, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	_, err := c.db.ExecContext(ctx, q, e.ID, e.VerificationID, e.Action, e.Actor, e.Detail, e.CreatedAt)
	return err
}

func (c *DatabaseClient) ListAuditEvents(ctx context.Context, verificationID string) ([]models.AuditEvent, error) {
	const q = `
		SELECT id, verification_id, action, actor, detail, created_at
		FROM audit_events
		WHERE verification_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, verificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.VerificationID, &e.Action, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.Verification, error) {
	var (
		v           models.Verification
		ocr         []byte
		insights    []byte
		validations []byte
		reviewedAt  sql.NullTime
	)
	err := row.Scan(
		&v.ID, &v.DocumentType, &v.DocumentURL, &v.Status, &v.Phase,
		&v.RiskScore, &v.RiskLevel, &v.CustomerName,
		&ocr, &insights, &validations, &v.SubmittedAt, &reviewedAt)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		v.ReviewedAt = &t
	}
	if err := json.Unmarshal(ocr, &v.OcrFields); err != nil {
		return nil, fmt.Errorf("decode ocr_fields: %w", err)
	}
	if err := json.Unmarshal(insights, &v.RiskInsights); err != nil {
		return nil, fmt.Errorf("decode risk_insights: %w", err)
	}
	if err := json.Unmarshal(validations, &v.ValidationResults); err != nil {
		return nil, fmt.Errorf("decode validation_results: %w", err)
	}
	return &v, nil
}

func marshalDetail(v *models.Verification) (ocr, insights, validations []byte, err error) {
	if ocr, err = json.Marshal(emptySlice(v.OcrFields)); err != nil {
		return
	}
	if insights, err = json.Marshal(emptySlice(v.RiskInsights)); err != nil {
		return
	}
	validations, err = json.Marshal(emptySlice(v.ValidationResults))
	return
}

// emptySlice keeps jsonb columns as [] instead of null.
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var _ core.DbClient = (*DatabaseClient)(nil)
