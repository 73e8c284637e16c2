package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/models"
)

// PatternStore is the slice of the persistence layer the catalog uses.
type PatternStore interface {
	ListFraudPatterns(ctx context.Context) ([]models.FraudPattern, error)
	UpsertFraudPattern(ctx context.Context, p *models.FraudPattern) error
}

// PatternService manages the fraud-pattern catalog and keeps the
// fraud_patterns vector namespace in sync with it.
type PatternService struct {
	db       PatternStore
	index    core.VectorIndex
	embedder core.EmbeddingProvider
}

func NewPatternService(db PatternStore, index core.VectorIndex, embedder core.EmbeddingProvider) *PatternService {
	return &PatternService{db: db, index: index, embedder: embedder}
}

func (s *PatternService) List(ctx context.Context) ([]models.FraudPattern, error) {
	return s.db.ListFraudPatterns(ctx)
}

// Upsert saves a pattern and re-embeds its description, so workflow
// matching immediately reflects the update.
func (s *PatternService) Upsert(ctx context.Context, p *models.FraudPattern) error {
	if p == nil || p.ID == "" || p.Name == "" {
		return fmt.Errorf("invalid fraud pattern payload")
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 100 {
		return fmt.Errorf("confidenceScore must be within 0-100")
	}

	if err := s.db.UpsertFraudPattern(ctx, p); err != nil {
		return fmt.Errorf("save pattern: %w", err)
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{patternText(p)})
	if err != nil || len(vecs) == 0 {
		return fmt.Errorf("embed pattern %s: %w", p.ID, err)
	}
	if err := s.index.Upsert(ctx, core.NamespaceFraudPatterns, p.ID, vecs[0]); err != nil {
		return fmt.Errorf("index pattern %s: %w", p.ID, err)
	}
	return nil
}

// EnsureEmbeddings (re)embeds the whole catalog. Run at startup so the
// seeded patterns become matchable; idempotent.
func (s *PatternService) EnsureEmbeddings(ctx context.Context) error {
	patterns, err := s.db.ListFraudPatterns(ctx)
	if err != nil {
		return fmt.Errorf("list patterns: %w", err)
	}
	if len(patterns) == 0 {
		return nil
	}

	texts := make([]string, len(patterns))
	for i := range patterns {
		texts[i] = patternText(&patterns[i])
	}
	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed patterns: %w", err)
	}
	if len(vecs) != len(patterns) {
		return fmt.Errorf("embedder returned %d vectors for %d patterns", len(vecs), len(patterns))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range patterns {
		p, vec := patterns[i], vecs[i]
		g.Go(func() error {
			return s.index.Upsert(gctx, core.NamespaceFraudPatterns, p.ID, vec)
		})
	}
	return g.Wait()
}

// patternText is the canonical text embedded for a fraud pattern.
func patternText(p *models.FraudPattern) string {
	return fmt.Sprintf(
		"Fraud Pattern: %s\nDescription: %s\nTechnique: %s\nConfidence Score: %d%%\n\nDetection Method: This pattern identifies %s in identity documents through %s.",
		p.Name, p.Description, p.Technique, p.ConfidenceScore, p.Name, p.Technique)
}
