package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
)

type chatStoreMock struct {
	verifications map[string]*models.Verification
	messages      []models.ChatMessage
	appendErr     error
}

func (m *chatStoreMock) GetVerificationByID(ctx context.Context, id string) (*models.Verification, error) {
	v, ok := m.verifications[id]
	if !ok {
		return nil, verr.ErrNotFound
	}
	return v, nil
}

func (m *chatStoreMock) AppendChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *chatStoreMock) GetChatHistory(ctx context.Context, verificationID string) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.VerificationID == verificationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *chatStoreMock) GetFraudPatternByID(ctx context.Context, id string) (*models.FraudPattern, error) {
	return nil, verr.ErrNotFound
}

type vectorIndexStub struct {
	queryFn func(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error)
}

func (s *vectorIndexStub) Upsert(ctx context.Context, namespace, id string, vector []float32) error {
	return nil
}

func (s *vectorIndexStub) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error) {
	if s.queryFn != nil {
		return s.queryFn(ctx, namespace, vector, topK)
	}
	return nil, nil
}

type embedderStub struct {
	err error
}

func (s *embedderStub) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{0.5, 0.5}
	}
	return vecs, nil
}

type llmStub struct {
	generateFn func(ctx context.Context, system, user string) (string, error)

	systemPrompts []string
	userPrompts   []string
}

func (s *llmStub) Generate(ctx context.Context, system, user string) (string, error) {
	s.systemPrompts = append(s.systemPrompts, system)
	s.userPrompts = append(s.userPrompts, user)
	if s.generateFn != nil {
		return s.generateFn(ctx, system, user)
	}
	return "assistant reply", nil
}

func chatFixture(llm *llmStub) (*ChatService, *chatStoreMock) {
	store := &chatStoreMock{
		verifications: map[string]*models.Verification{
			"v-1": {
				ID:           "v-1",
				DocumentType: models.DocTypePassport,
				CustomerName: "Jane Doe",
				Status:       models.StatusPending,
				RiskScore:    45,
				RiskLevel:    models.RiskMedium,
			},
		},
	}
	svc := NewChatService(store, &vectorIndexStub{}, &embedderStub{}, llm, ChatTimeouts{})
	return svc, store
}

func TestRespondAppendsTurnsInOrder(t *testing.T) {
	llm := &llmStub{}
	svc, store := chatFixture(llm)
	ctx := context.Background()

	if _, err := svc.Respond(ctx, "v-1", "Why is the risk score elevated?"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := svc.Respond(ctx, "v-1", "Which fields drove it?"); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	wantRoles := []string{"user", "assistant", "user", "assistant"}
	if len(store.messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(store.messages), len(wantRoles))
	}
	var prev time.Time
	for i, msg := range store.messages {
		if msg.Role != wantRoles[i] {
			t.Errorf("message %d role = %s, want %s", i, msg.Role, wantRoles[i])
		}
		if msg.Timestamp.Before(prev) {
			t.Errorf("message %d timestamp %v precedes %v", i, msg.Timestamp, prev)
		}
		prev = msg.Timestamp
	}

	// The second turn's prompt carries the earlier conversation.
	last := llm.userPrompts[len(llm.userPrompts)-1]
	if !strings.Contains(last, "Why is the risk score elevated?") {
		t.Fatalf("second prompt missing prior turn:\n%s", last)
	}
	if !strings.Contains(last, "Analyst question: Which fields drove it?") {
		t.Fatalf("second prompt missing current question:\n%s", last)
	}
}

func TestRespondGenerationFailureKeepsUserMessage(t *testing.T) {
	llm := &llmStub{
		generateFn: func(ctx context.Context, system, user string) (string, error) {
			return "", errors.New("model overloaded")
		},
	}
	svc, store := chatFixture(llm)

	_, err := svc.Respond(context.Background(), "v-1", "Is this document forged?")
	if !errors.Is(err, verr.ErrChatGeneration) {
		t.Fatalf("err = %v, want ErrChatGeneration", err)
	}

	if len(store.messages) != 1 {
		t.Fatalf("got %d messages, want only the user message", len(store.messages))
	}
	if store.messages[0].Role != "user" || store.messages[0].Content != "Is this document forged?" {
		t.Fatalf("persisted message = %+v", store.messages[0])
	}
}

func TestRespondUnknownVerification(t *testing.T) {
	svc, store := chatFixture(&llmStub{})

	_, err := svc.Respond(context.Background(), "nope", "hello?")
	if !errors.Is(err, verr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(store.messages) != 0 {
		t.Fatalf("messages = %v, want none persisted", store.messages)
	}
}

func TestRespondRejectsEmptyContent(t *testing.T) {
	svc, store := chatFixture(&llmStub{})

	if _, err := svc.Respond(context.Background(), "v-1", "   "); err == nil {
		t.Fatal("blank content should be rejected")
	}
	if len(store.messages) != 0 {
		t.Fatalf("messages = %v, want none persisted", store.messages)
	}
}

func TestRespondSurvivesRetrievalFailure(t *testing.T) {
	llm := &llmStub{}
	store := &chatStoreMock{
		verifications: map[string]*models.Verification{"v-1": {ID: "v-1", DocumentType: models.DocTypePassport}},
	}
	index := &vectorIndexStub{
		queryFn: func(ctx context.Context, namespace string, vector []float32, topK int) ([]core.Match, error) {
			return nil, errors.New("index down")
		},
	}
	svc := NewChatService(store, index, &embedderStub{}, llm, ChatTimeouts{})

	msg, err := svc.Respond(context.Background(), "v-1", "Anything suspicious here?")
	if err != nil {
		t.Fatalf("retrieval failure must not fail the turn: %v", err)
	}
	if msg.Role != "assistant" || msg.Content != "assistant reply" {
		t.Fatalf("reply = %+v", msg)
	}
}

func TestHistoryUnknownVerification(t *testing.T) {
	svc, _ := chatFixture(&llmStub{})
	if _, err := svc.History(context.Background(), "nope"); !errors.Is(err, verr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
