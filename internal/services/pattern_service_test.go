package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/models"
)

type patternStoreMock struct {
	patterns []models.FraudPattern
}

func (m *patternStoreMock) ListFraudPatterns(ctx context.Context) ([]models.FraudPattern, error) {
	return m.patterns, nil
}

func (m *patternStoreMock) UpsertFraudPattern(ctx context.Context, p *models.FraudPattern) error {
	for i := range m.patterns {
		if m.patterns[i].ID == p.ID {
			m.patterns[i] = *p
			return nil
		}
	}
	m.patterns = append(m.patterns, *p)
	return nil
}

type recordingIndex struct {
	mu       sync.Mutex
	upserted []string
	err      error
}

func (r *recordingIndex) Upsert(ctx context.Context, namespace, id string, vector []float32) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted = append(r.upserted, namespace+"/"+id)
	return nil
}

func (r *recordingIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error) {
	return nil, nil
}

func TestPatternUpsertReindexes(t *testing.T) {
	store := &patternStoreMock{}
	index := &recordingIndex{}
	svc := NewPatternService(store, index, &embedderStub{})

	p := &models.FraudPattern{ID: "fp-1", Name: "Font Substitution", Technique: "typography analysis", ConfidenceScore: 94}
	if err := svc.Upsert(context.Background(), p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(store.patterns) != 1 {
		t.Fatalf("stored patterns = %v, want 1", store.patterns)
	}
	if len(index.upserted) != 1 || index.upserted[0] != core.NamespaceFraudPatterns+"/fp-1" {
		t.Fatalf("index upserts = %v, want one into the fraud namespace", index.upserted)
	}
}

func TestPatternUpsertValidation(t *testing.T) {
	svc := NewPatternService(&patternStoreMock{}, &recordingIndex{}, &embedderStub{})

	bad := []*models.FraudPattern{
		nil,
		{ID: "", Name: "x"},
		{ID: "fp-1", Name: ""},
		{ID: "fp-1", Name: "x", ConfidenceScore: 101},
		{ID: "fp-1", Name: "x", ConfidenceScore: -1},
	}
	for i, p := range bad {
		if err := svc.Upsert(context.Background(), p); err == nil {
			t.Errorf("case %d: payload %+v should be rejected", i, p)
		}
	}
}

func TestEnsureEmbeddingsCoversCatalog(t *testing.T) {
	store := &patternStoreMock{
		patterns: []models.FraudPattern{
			{ID: "fp-1", Name: "Font Substitution", ConfidenceScore: 94},
			{ID: "fp-2", Name: "Photo Replacement", ConfidenceScore: 91},
			{ID: "fp-3", Name: "Hologram Forgery", ConfidenceScore: 96},
		},
	}
	index := &recordingIndex{}
	svc := NewPatternService(store, index, &embedderStub{})

	if err := svc.EnsureEmbeddings(context.Background()); err != nil {
		t.Fatalf("EnsureEmbeddings: %v", err)
	}

	sort.Strings(index.upserted)
	want := []string{
		core.NamespaceFraudPatterns + "/fp-1",
		core.NamespaceFraudPatterns + "/fp-2",
		core.NamespaceFraudPatterns + "/fp-3",
	}
	if len(index.upserted) != len(want) {
		t.Fatalf("upserts = %v, want %v", index.upserted, want)
	}
	for i := range want {
		if index.upserted[i] != want[i] {
			t.Fatalf("upserts = %v, want %v", index.upserted, want)
		}
	}
}

func TestEnsureEmbeddingsEmptyCatalog(t *testing.T) {
	embedder := &embedderStub{err: errors.New("should not be called")}
	svc := NewPatternService(&patternStoreMock{}, &recordingIndex{}, embedder)

	if err := svc.EnsureEmbeddings(context.Background()); err != nil {
		t.Fatalf("empty catalog should be a no-op: %v", err)
	}
}

func TestEnsureEmbeddingsEmbedderFailure(t *testing.T) {
	store := &patternStoreMock{patterns: []models.FraudPattern{{ID: "fp-1", Name: "x", ConfidenceScore: 90}}}
	svc := NewPatternService(store, &recordingIndex{}, &embedderStub{err: errors.New("quota exceeded")})

	if err := svc.EnsureEmbeddings(context.Background()); err == nil {
		t.Fatal("embedder failure must surface")
	}
}
