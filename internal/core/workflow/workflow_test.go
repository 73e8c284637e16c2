package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/core/extraction"
	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
)

type storeMock struct {
	claimFn    func(ctx context.Context, id string) error
	settingsFn func(ctx context.Context) (*models.Settings, error)
	patternFn  func(ctx context.Context, id string) (*models.FraudPattern, error)
	updateFn   func(ctx context.Context, v *models.Verification) error

	updated *models.Verification
}

func (m *storeMock) ClaimWorkflow(ctx context.Context, id string) error {
	if m.claimFn != nil {
		return m.claimFn(ctx, id)
	}
	return nil
}

func (m *storeMock) GetSettings(ctx context.Context) (*models.Settings, error) {
	if m.settingsFn != nil {
		return m.settingsFn(ctx)
	}
	s := models.DefaultSettings()
	return &s, nil
}

func (m *storeMock) GetFraudPatternByID(ctx context.Context, id string) (*models.FraudPattern, error) {
	if m.patternFn != nil {
		return m.patternFn(ctx, id)
	}
	return nil, verr.ErrNotFound
}

func (m *storeMock) UpdateVerificationAnalysis(ctx context.Context, v *models.Verification) error {
	m.updated = v
	if m.updateFn != nil {
		return m.updateFn(ctx, v)
	}
	return nil
}

type indexMock struct {
	queryFn  func(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error)
	upsertFn func(ctx context.Context, namespace, id string, vector []float32) error

	upserted []string // namespace/id pairs
}

func (m *indexMock) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, namespace, vector, topK)
	}
	return nil, nil
}

func (m *indexMock) Upsert(ctx context.Context, namespace, id string, vector []float32) error {
	m.upserted = append(m.upserted, namespace+"/"+id)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, namespace, id, vector)
	}
	return nil
}

type embedderMock struct {
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *embedderMock) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, texts)
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, nil
}

type extractorMock struct {
	extractFn func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error)
}

func (m *extractorMock) Extract(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
	return m.extractFn(ctx, data, mimeType, docType)
}

func cleanPassportResult() *extraction.Result {
	return &extraction.Result{
		Fields: []models.OcrField{
			{FieldName: "Full Name", Value: "Jane Doe", Confidence: 98},
			{FieldName: "Document Number", Value: "P1234567", Confidence: 97},
			{FieldName: "Date of Birth", Value: "1990-04-01", Confidence: 96},
			{FieldName: "Expiry Date", Value: "2030-04-01", Confidence: 96},
			{FieldName: "MRZ Code", Value: "P<UTODOE<<JANE<<<", Confidence: 95},
		},
		Analysis: extraction.DocumentAnalysis{DetectedType: models.DocTypePassport, IsReadable: true, QualityScore: 92},
	}
}

func newState(id string) *State {
	return &State{
		Verification: &models.Verification{
			ID:           id,
			DocumentType: models.DocTypePassport,
			Status:       models.StatusPending,
			Phase:        models.PhaseCreated,
		},
		Document: []byte("img-bytes"),
		MimeType: "image/jpeg",
	}
}

func TestRunAutoApprove(t *testing.T) {
	store := &storeMock{}
	index := &indexMock{
		queryFn: func(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error) {
			if namespace == core.NamespaceDocuments {
				// Includes the record itself, which must be excluded.
				return []core.Match{{ID: "v-1", Similarity: 0.99}, {ID: "v-other", Similarity: 0.82}}, nil
			}
			return nil, nil
		},
	}
	ext := &extractorMock{
		extractFn: func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
			return cleanPassportResult(), nil
		},
	}

	engine := NewEngine(store, index, &embedderMock{}, ext, Timeouts{})
	st := newState("v-1")
	if err := engine.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	v := st.Verification
	if v.Phase != models.PhaseAutoApproved || v.Status != models.StatusApproved {
		t.Fatalf("terminal = %s/%s, want auto_approved/approved", v.Phase, v.Status)
	}
	if v.RiskScore != 0 || v.RiskLevel != models.RiskLow {
		t.Fatalf("risk = %d/%s, want 0/low", v.RiskScore, v.RiskLevel)
	}
	if v.ReviewedAt == nil {
		t.Fatal("auto decision should set ReviewedAt")
	}
	if v.CustomerName != "Jane Doe" {
		t.Fatalf("customer name = %q, want extracted full name", v.CustomerName)
	}
	if store.updated == nil {
		t.Fatal("analysis was never persisted")
	}
	if len(st.SimilarDocs) != 1 || st.SimilarDocs[0].ID != "v-other" {
		t.Fatalf("similar docs = %v, want the record itself excluded", st.SimilarDocs)
	}
	if len(index.upserted) != 1 || index.upserted[0] != core.NamespaceDocuments+"/v-1" {
		t.Fatalf("summary upserts = %v, want one into the documents namespace", index.upserted)
	}
}

func TestRunExtractionFailureRoutesToManualReview(t *testing.T) {
	store := &storeMock{}
	ext := &extractorMock{
		extractFn: func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
			return nil, fmt.Errorf("%w: vision timeout", verr.ErrExtractionUnavailable)
		},
	}

	engine := NewEngine(store, &indexMock{}, &embedderMock{}, ext, Timeouts{})
	st := newState("v-2")
	if err := engine.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	v := st.Verification
	if v.Phase != models.PhaseManualReview || v.Status != models.StatusInReview {
		t.Fatalf("terminal = %s/%s, want pending_manual_review/in_review", v.Phase, v.Status)
	}
	if v.ReviewedAt != nil {
		t.Fatal("manual-review routing must not set ReviewedAt")
	}
	var sys *models.RiskInsight
	for i := range v.RiskInsights {
		if v.RiskInsights[i].Category == models.InsightSystem {
			sys = &v.RiskInsights[i]
		}
	}
	if sys == nil || sys.Severity != "high" {
		t.Fatalf("insights = %v, want a high-severity system insight", v.RiskInsights)
	}
	if store.updated == nil {
		t.Fatal("failed run must still persist a terminal record")
	}
}

func TestRunClaimConflict(t *testing.T) {
	store := &storeMock{
		claimFn: func(ctx context.Context, id string) error {
			return verr.ErrWorkflowConflict
		},
	}
	ext := &extractorMock{
		extractFn: func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
			t.Fatal("extraction must not run on a conflicting claim")
			return nil, nil
		},
	}

	engine := NewEngine(store, &indexMock{}, &embedderMock{}, ext, Timeouts{})
	err := engine.Run(context.Background(), newState("v-3"))
	if !errors.Is(err, verr.ErrWorkflowConflict) {
		t.Fatalf("err = %v, want ErrWorkflowConflict", err)
	}
	if store.updated != nil {
		t.Fatal("conflicting run must not persist anything")
	}
}

func TestRunRetrievalDegraded(t *testing.T) {
	store := &storeMock{}
	index := &indexMock{
		queryFn: func(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error) {
			return nil, errors.New("index down")
		},
	}
	ext := &extractorMock{
		extractFn: func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
			return cleanPassportResult(), nil
		},
	}

	engine := NewEngine(store, index, &embedderMock{}, ext, Timeouts{})
	st := newState("v-4")
	if err := engine.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	v := st.Verification
	if !v.Phase.Terminal() {
		t.Fatalf("phase = %s, want terminal despite degraded retrieval", v.Phase)
	}
	if v.Status != models.StatusApproved {
		t.Fatalf("status = %s, want approved (degradation alone adds no penalty)", v.Status)
	}
	var degraded int
	for _, in := range v.RiskInsights {
		if in.Category == models.InsightSystem {
			degraded++
		}
	}
	if degraded == 0 {
		t.Fatalf("insights = %v, want degradation recorded", v.RiskInsights)
	}
}

func TestRunAutoReject(t *testing.T) {
	pattern := &models.FraudPattern{ID: "fp-1", Name: "Font Substitution", Technique: "typography analysis", ConfidenceScore: 94}
	store := &storeMock{
		settingsFn: func(ctx context.Context) (*models.Settings, error) {
			return &models.Settings{AutoApproveThreshold: 30, HighRiskThreshold: 70, AutoRejectHighRisk: true}, nil
		},
		patternFn: func(ctx context.Context, id string) (*models.FraudPattern, error) {
			if id != "fp-1" {
				return nil, verr.ErrNotFound
			}
			return pattern, nil
		},
	}
	index := &indexMock{
		queryFn: func(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error) {
			if namespace == core.NamespaceFraudPatterns {
				return []core.Match{
					{ID: "fp-1", Similarity: 0.9},
					{ID: "fp-2", Similarity: 0.5}, // below threshold, ignored
				}, nil
			}
			return nil, nil
		},
	}
	ext := &extractorMock{
		extractFn: func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
			res := cleanPassportResult()
			res.Fields[1].Confidence = 40
			return res, nil
		},
	}

	engine := NewEngine(store, index, &embedderMock{}, ext, Timeouts{})
	st := newState("v-5")
	if err := engine.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	v := st.Verification
	if v.RiskScore != 73 || v.RiskLevel != models.RiskHigh {
		t.Fatalf("risk = %d/%s, want 73/high", v.RiskScore, v.RiskLevel)
	}
	if v.Phase != models.PhaseAutoRejected || v.Status != models.StatusRejected {
		t.Fatalf("terminal = %s/%s, want auto_rejected/rejected", v.Phase, v.Status)
	}
	if v.ReviewedAt == nil {
		t.Fatal("auto decision should set ReviewedAt")
	}
	if len(st.FraudMatches) != 1 || st.FraudMatches[0].Pattern.ID != "fp-1" {
		t.Fatalf("fraud matches = %v, want only the above-threshold pattern", st.FraudMatches)
	}
}

func TestRunMediumScorePendsManualReview(t *testing.T) {
	store := &storeMock{}
	ext := &extractorMock{
		extractFn: func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
			res := cleanPassportResult()
			res.Fields[1].Confidence = 40
			res.Fields[3].Confidence = 40
			return res, nil
		},
	}

	engine := NewEngine(store, &indexMock{}, &embedderMock{}, ext, Timeouts{})
	st := newState("v-6")
	if err := engine.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	v := st.Verification
	if v.RiskScore != 36 || v.RiskLevel != models.RiskMedium {
		t.Fatalf("risk = %d/%s, want 36/medium", v.RiskScore, v.RiskLevel)
	}
	if v.Phase != models.PhaseManualReview || v.Status != models.StatusPending {
		t.Fatalf("terminal = %s/%s, want pending_manual_review/pending", v.Phase, v.Status)
	}
	if v.ReviewedAt != nil {
		t.Fatal("pending review must leave ReviewedAt unset")
	}
}

func TestRunSettingsFallback(t *testing.T) {
	store := &storeMock{
		settingsFn: func(ctx context.Context) (*models.Settings, error) {
			return nil, errors.New("settings table unavailable")
		},
	}
	ext := &extractorMock{
		extractFn: func(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*extraction.Result, error) {
			return cleanPassportResult(), nil
		},
	}

	engine := NewEngine(store, &indexMock{}, &embedderMock{}, ext, Timeouts{})
	st := newState("v-7")
	if err := engine.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Settings != models.DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", st.Settings)
	}
	if st.Verification.Status != models.StatusApproved {
		t.Fatalf("status = %s, want approved under default thresholds", st.Verification.Status)
	}
}

func TestSummaryTextStable(t *testing.T) {
	v := &models.Verification{
		DocumentType: models.DocTypePassport,
		CustomerName: "Jane Doe",
		OcrFields: []models.OcrField{
			{FieldName: "Full Name", Value: "Jane Doe"},
			{FieldName: "Document Number", Value: "P1234567"},
		},
	}
	want := "Document Type: passport\nCustomer Name: Jane Doe\nFull Name: Jane Doe\nDocument Number: P1234567\n"
	if got := SummaryText(v); got != want {
		t.Fatalf("SummaryText = %q, want %q", got, want)
	}
	if SummaryText(v) != SummaryText(v) {
		t.Fatal("SummaryText must be stable for the same record")
	}
}
