package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/core/workflow"
	"github.com/verifai-labs/verifai/internal/models"
)

// historyWindow bounds how many prior chat turns feed the prompt.
const historyWindow = 10

// ChatTimeouts bounds the external calls made per chat turn.
type ChatTimeouts struct {
	Embed    time.Duration
	Query    time.Duration
	Generate time.Duration
}

func (t ChatTimeouts) withDefaults() ChatTimeouts {
	if t.Embed <= 0 {
		t.Embed = 15 * time.Second
	}
	if t.Query <= 0 {
		t.Query = 10 * time.Second
	}
	if t.Generate <= 0 {
		t.Generate = 45 * time.Second
	}
	return t
}

// ChatStore is the slice of the persistence layer a chat turn touches.
type ChatStore interface {
	GetVerificationByID(ctx context.Context, id string) (*models.Verification, error)
	AppendChatMessage(ctx context.Context, m *models.ChatMessage) error
	GetChatHistory(ctx context.Context, verificationID string) ([]models.ChatMessage, error)
	GetFraudPatternByID(ctx context.Context, id string) (*models.FraudPattern, error)
}

// ChatService answers analyst questions about one verification,
// grounded in retrieved similar cases and fraud patterns.
type ChatService struct {
	db       ChatStore
	index    core.VectorIndex
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	timeouts ChatTimeouts
}

func NewChatService(db ChatStore, index core.VectorIndex, embedder core.EmbeddingProvider, llm core.LLMProvider, timeouts ChatTimeouts) *ChatService {
	return &ChatService{db: db, index: index, embedder: embedder, llm: llm, timeouts: timeouts.withDefaults()}
}

func (s *ChatService) History(ctx context.Context, verificationID string) ([]models.ChatMessage, error) {
	if _, err := s.db.GetVerificationByID(ctx, verificationID); err != nil {
		return nil, err
	}
	return s.db.GetChatHistory(ctx, verificationID)
}

// Respond runs one chat turn. The user message is persisted before any
// capability call so a later failure still leaves the question recorded;
// on generation failure no assistant message is appended and the caller
// may retry.
func (s *ChatService) Respond(ctx context.Context, verificationID, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content required")
	}

	v, err := s.db.GetVerificationByID(ctx, verificationID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		ID:             uuid.NewString(),
		VerificationID: verificationID,
		Role:           "user",
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.db.AppendChatMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := s.db.GetChatHistory(ctx, verificationID)
	if err != nil {
		log.Printf("chat %s: history unavailable: %v", verificationID, err)
		history = []models.ChatMessage{*userMsg}
	}

	similar, patterns := s.retrieveContext(ctx, v, content)

	systemPrompt := s.buildSystemPrompt(v, similar, patterns)
	userPrompt := buildUserPrompt(history, content)

	gctx, cancel := context.WithTimeout(ctx, s.timeouts.Generate)
	defer cancel()
	answer, err := s.llm.Generate(gctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verr.ErrChatGeneration, err)
	}

	assistantMsg := &models.ChatMessage{
		ID:             uuid.NewString(),
		VerificationID: verificationID,
		Role:           "assistant",
		Content:        answer,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.db.AppendChatMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	return assistantMsg, nil
}

// retrieveContext embeds the question and pulls similar verifications
// and matching fraud patterns from the index. Retrieval failure degrades
// to an answer grounded only in the record itself.
func (s *ChatService) retrieveContext(ctx context.Context, v *models.Verification, query string) ([]*models.Verification, []*models.FraudPattern) {
	ectx, cancel := context.WithTimeout(ctx, s.timeouts.Embed)
	defer cancel()
	vecs, err := s.embedder.EmbedTexts(ectx, []string{query})
	if err != nil || len(vecs) == 0 {
		log.Printf("chat %s: query embedding unavailable: %v", v.ID, err)
		return nil, nil
	}
	vec := vecs[0]

	var similar []*models.Verification
	qctx, cancel2 := context.WithTimeout(ctx, s.timeouts.Query)
	defer cancel2()
	docMatches, err := s.index.Query(qctx, core.NamespaceDocuments, vec, workflow.TopK+1)
	if err != nil {
		log.Printf("chat %s: similar-document retrieval degraded: %v", v.ID, err)
	}
	for _, m := range docMatches {
		if m.ID == v.ID {
			continue
		}
		sv, err := s.db.GetVerificationByID(ctx, m.ID)
		if err != nil {
			continue
		}
		similar = append(similar, sv)
		if len(similar) == workflow.TopK {
			break
		}
	}

	var patterns []*models.FraudPattern
	pctx, cancel3 := context.WithTimeout(ctx, s.timeouts.Query)
	defer cancel3()
	patternMatches, err := s.index.Query(pctx, core.NamespaceFraudPatterns, vec, workflow.TopK)
	if err != nil {
		log.Printf("chat %s: fraud-pattern retrieval degraded: %v", v.ID, err)
	}
	for _, m := range patternMatches {
		if m.Similarity < workflow.MatchThreshold {
			continue
		}
		p, err := s.db.GetFraudPatternByID(ctx, m.ID)
		if err != nil || p == nil {
			continue
		}
		patterns = append(patterns, p)
	}

	return similar, patterns
}

func (s *ChatService) buildSystemPrompt(v *models.Verification, similar []*models.Verification, patterns []*models.FraudPattern) string {
	var b strings.Builder
	b.WriteString("You are an expert KYC compliance analyst AI assistant. You have access to a knowledge base of past verifications and fraud patterns.\n\n")

	fmt.Fprintf(&b, "Current Document Under Review:\n- Type: %s\n- Customer: %s\n- Risk Score: %d/100 (%s risk)\n- Status: %s\n\n",
		v.DocumentType, orUnknown(v.CustomerName), v.RiskScore, strings.ToUpper(string(v.RiskLevel)), v.Status)

	b.WriteString("Extracted OCR Data:\n")
	for _, f := range v.OcrFields {
		fmt.Fprintf(&b, "- %s: %q (confidence %d%%)\n", f.FieldName, f.Value, f.Confidence)
	}

	b.WriteString("\nRisk Insights:\n")
	for _, in := range v.RiskInsights {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", in.Category, in.Severity, in.Description)
	}

	if len(similar) > 0 {
		b.WriteString("\nSimilar Past Verifications:\n")
		for i, sv := range similar {
			fmt.Fprintf(&b, "%d. %s - Risk: %s (%d), Status: %s\n",
				i+1, orUnknown(sv.CustomerName), sv.RiskLevel, sv.RiskScore, sv.Status)
		}
	}
	if len(patterns) > 0 {
		b.WriteString("\nPotentially Matching Fraud Patterns:\n")
		for i, p := range patterns {
			fmt.Fprintf(&b, "%d. %s - Technique: %s (detection confidence %d%%)\n",
				i+1, p.Name, p.Technique, p.ConfidenceScore)
		}
	}

	b.WriteString("\nProvide expert analysis and recommendations based on the document data and your knowledge base. Be concise but thorough. Cite similar cases or patterns when relevant.")
	return b.String()
}

// buildUserPrompt renders the last few turns plus the current question.
// The history already contains the just-appended user message, so it is
// excluded from the conversation section.
func buildUserPrompt(history []models.ChatMessage, question string) string {
	turns := history
	if len(turns) > 0 && turns[len(turns)-1].Role == "user" && turns[len(turns)-1].Content == question {
		turns = turns[:len(turns)-1]
	}
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}

	var b strings.Builder
	if len(turns) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range turns {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Analyst question: %s", question)
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
