// Package workflow runs the automated verification pipeline: OCR
// analysis, fraud-pattern matching, similar-document retrieval,
// compliance validation and the final recommendation. Steps are strictly
// sequential; each accumulates onto a typed State. Capability failures
// degrade gracefully so every run ends in a terminal phase.
package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/core/extraction"
	"github.com/verifai-labs/verifai/internal/core/risk"
	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
)

// Retrieval tuning shared with the chat engine: top-k neighbors, and the
// cosine similarity a fraud pattern must reach to count as a match.
const (
	TopK           = 5
	MatchThreshold = 0.75
)

const (
	defaultExtractTime = 60 * time.Second
	defaultEmbedTime   = 15 * time.Second
	defaultQueryTime   = 10 * time.Second
)

// FieldExtractor is the extraction capability as the workflow sees it.
type FieldExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error)
}

// Store is the slice of the persistence layer a workflow run touches.
type Store interface {
	ClaimWorkflow(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (*models.Settings, error)
	GetFraudPatternByID(ctx context.Context, id string) (*models.FraudPattern, error)
	UpdateVerificationAnalysis(ctx context.Context, v *models.Verification) error
}

// Timeouts bounds each external capability call made by a run.
type Timeouts struct {
	Extraction time.Duration
	Embed      time.Duration
	Query      time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Extraction <= 0 {
		t.Extraction = defaultExtractTime
	}
	if t.Embed <= 0 {
		t.Embed = defaultEmbedTime
	}
	if t.Query <= 0 {
		t.Query = defaultQueryTime
	}
	return t
}

// State is the accumulated context threaded through the pipeline steps.
type State struct {
	Verification *models.Verification
	Document     []byte
	MimeType     string
	Submitted    map[string]string // customer-provided values for validation
	Settings     models.Settings

	Extraction   *extraction.Result
	SummaryText  string
	SummaryVec   []float32
	FraudMatches []risk.FraudMatch
	SimilarDocs  []core.Match
	Validations  []models.ValidationResult
}

type Engine struct {
	db        Store
	index     core.VectorIndex
	embedder  core.EmbeddingProvider
	extractor FieldExtractor
	timeouts  Timeouts
}

func NewEngine(db Store, index core.VectorIndex, embedder core.EmbeddingProvider, extractor FieldExtractor, timeouts Timeouts) *Engine {
	return &Engine{
		db:        db,
		index:     index,
		embedder:  embedder,
		extractor: extractor,
		timeouts:  timeouts.withDefaults(),
	}
}

// Run executes the pipeline for the verification in st. The record must
// be in the created phase; a second run on the same verification returns
// verr.ErrWorkflowConflict. Any other outcome is a terminal phase
// persisted on the record, never a stuck pipeline.
func (e *Engine) Run(ctx context.Context, st *State) error {
	v := st.Verification

	if err := e.db.ClaimWorkflow(ctx, v.ID); err != nil {
		return err
	}

	settings, err := e.db.GetSettings(ctx)
	if err != nil {
		// Scoring thresholds are required; fall back to defaults rather
		// than leaving the record mid-pipeline.
		log.Printf("workflow %s: settings unavailable, using defaults: %v", v.ID, err)
		st.Settings = models.DefaultSettings()
	} else {
		st.Settings = *settings
	}

	if err := e.stepOcr(ctx, st); err != nil {
		// Fails closed: extraction failure routes straight to manual
		// review with an explanatory insight.
		v.RiskInsights = append(v.RiskInsights, models.RiskInsight{
			Category:    models.InsightSystem,
			Description: fmt.Sprintf("Automated extraction failed: %v", err),
			Severity:    "high",
		})
		return e.finish(ctx, st, models.PhaseManualReview, models.StatusInReview)
	}
	v.Phase = models.PhaseOcrAnalyzed

	e.stepFraudCheck(ctx, st)
	v.Phase = models.PhaseFraudChecked

	e.stepSimilarity(ctx, st)
	v.Phase = models.PhaseSimilarityChecked

	st.Validations = ValidateCompliance(v.DocumentType, v.OcrFields, st.Submitted)
	v.ValidationResults = st.Validations
	v.Phase = models.PhaseComplianceChecked

	score, level, insights := risk.Score(v.OcrFields, st.FraudMatches, st.Validations, st.Settings)
	v.RiskScore = score
	v.RiskLevel = level
	v.RiskInsights = append(v.RiskInsights, insights...)
	v.Phase = models.PhaseRecommended

	phase, status := e.decide(st)
	return e.finish(ctx, st, phase, status)
}

// stepOcr invokes the field extractor and stores the fields. The
// document type may be corrected from the model's own detection.
func (e *Engine) stepOcr(ctx context.Context, st *State) error {
	cctx, cancel := context.WithTimeout(ctx, e.timeouts.Extraction)
	defer cancel()

	res, err := e.extractor.Extract(cctx, st.Document, st.MimeType, st.Verification.DocumentType)
	if err != nil {
		return err
	}
	st.Extraction = res
	st.Verification.OcrFields = res.Fields

	if res.Analysis.DetectedType.Valid() && res.Analysis.DetectedType != st.Verification.DocumentType {
		st.Verification.DocumentType = res.Analysis.DetectedType
	}
	if st.Verification.CustomerName == "" {
		for _, f := range res.Fields {
			if normalizeValue(f.FieldName) == "full name" && f.Value != "" {
				st.Verification.CustomerName = f.Value
				break
			}
		}
	}
	return nil
}

// stepFraudCheck embeds the canonical document summary and matches it
// against known fraud patterns. Index or embedder failure degrades to an
// empty match set with a system insight.
func (e *Engine) stepFraudCheck(ctx context.Context, st *State) {
	st.SummaryText = SummaryText(st.Verification)

	vec, err := e.embedSummary(ctx, st.SummaryText)
	if err != nil {
		e.degrade(st, "fraud-pattern matching", err)
		return
	}
	st.SummaryVec = vec

	qctx, cancel := context.WithTimeout(ctx, e.timeouts.Query)
	defer cancel()

	matches, err := e.index.Query(qctx, core.NamespaceFraudPatterns, vec, TopK)
	if err != nil {
		e.degrade(st, "fraud-pattern matching", fmt.Errorf("%w: %v", verr.ErrRetrievalDegraded, err))
		return
	}

	for _, m := range matches {
		if m.Similarity < MatchThreshold {
			continue
		}
		p, err := e.db.GetFraudPatternByID(ctx, m.ID)
		if err != nil || p == nil {
			log.Printf("workflow %s: matched unknown fraud pattern %s: %v", st.Verification.ID, m.ID, err)
			continue
		}
		st.FraudMatches = append(st.FraudMatches, risk.FraudMatch{Pattern: *p, Similarity: m.Similarity})
	}
}

// stepSimilarity retrieves similar prior verifications. Used only as
// chat/explanation context, never scored directly.
func (e *Engine) stepSimilarity(ctx context.Context, st *State) {
	if st.SummaryVec == nil {
		// Embedding already failed in the fraud step; one degradation
		// insight is enough.
		return
	}

	qctx, cancel := context.WithTimeout(ctx, e.timeouts.Query)
	defer cancel()

	// Ask for one extra so dropping the record itself still leaves TopK.
	matches, err := e.index.Query(qctx, core.NamespaceDocuments, st.SummaryVec, TopK+1)
	if err != nil {
		e.degrade(st, "similar-document retrieval", fmt.Errorf("%w: %v", verr.ErrRetrievalDegraded, err))
		return
	}
	for _, m := range matches {
		if m.ID == st.Verification.ID {
			continue
		}
		st.SimilarDocs = append(st.SimilarDocs, m)
		if len(st.SimilarDocs) == TopK {
			break
		}
	}
}

func (e *Engine) embedSummary(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, e.timeouts.Embed)
	defer cancel()

	vecs, err := e.embedder.EmbedTexts(ectx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", verr.ErrRetrievalDegraded, err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vectors", verr.ErrRetrievalDegraded)
	}
	return vecs[0], nil
}

// decide applies the settings to the recommended score.
func (e *Engine) decide(st *State) (models.WorkflowPhase, models.VerificationStatus) {
	score := st.Verification.RiskScore
	switch {
	case score < st.Settings.AutoApproveThreshold:
		return models.PhaseAutoApproved, models.StatusApproved
	case st.Settings.AutoRejectHighRisk && score >= st.Settings.HighRiskThreshold:
		return models.PhaseAutoRejected, models.StatusRejected
	default:
		return models.PhaseManualReview, models.StatusPending
	}
}

// finish persists the terminal state and, best-effort, indexes the
// verification summary for future similarity retrieval.
func (e *Engine) finish(ctx context.Context, st *State, phase models.WorkflowPhase, status models.VerificationStatus) error {
	v := st.Verification
	v.Phase = phase
	v.Status = status

	if status == models.StatusApproved || status == models.StatusRejected {
		now := time.Now().UTC()
		v.ReviewedAt = &now
	}

	if err := e.db.UpdateVerificationAnalysis(ctx, v); err != nil {
		return fmt.Errorf("persist analysis: %w", err)
	}

	e.indexSummary(ctx, st)
	return nil
}

func (e *Engine) indexSummary(ctx context.Context, st *State) {
	vec := st.SummaryVec
	if vec == nil {
		if len(st.Verification.OcrFields) == 0 {
			return
		}
		var err error
		vec, err = e.embedSummary(ctx, SummaryText(st.Verification))
		if err != nil {
			log.Printf("workflow %s: summary embedding skipped: %v", st.Verification.ID, err)
			return
		}
	}

	uctx, cancel := context.WithTimeout(ctx, e.timeouts.Query)
	defer cancel()
	if err := e.index.Upsert(uctx, core.NamespaceDocuments, st.Verification.ID, vec); err != nil {
		log.Printf("workflow %s: summary indexing skipped: %v", st.Verification.ID, err)
	}
}

func (e *Engine) degrade(st *State, what string, err error) {
	log.Printf("workflow %s: %s degraded: %v", st.Verification.ID, what, err)
	st.Verification.RiskInsights = append(st.Verification.RiskInsights, models.RiskInsight{
		Category:    models.InsightSystem,
		Description: fmt.Sprintf("Degraded %s; proceeding without it", what),
		Severity:    "medium",
	})
}

// SummaryText builds the canonical text embedded for a verification:
// the document type line followed by "fieldName: value" lines in
// extraction order. The order is fixed so the same record always embeds
// the same text.
func SummaryText(v *models.Verification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document Type: %s\n", v.DocumentType)
	if v.CustomerName != "" {
		fmt.Fprintf(&b, "Customer Name: %s\n", v.CustomerName)
	}
	for _, f := range v.OcrFields {
		fmt.Fprintf(&b, "%s: %s\n", f.FieldName, f.Value)
	}
	return b.String()
}
