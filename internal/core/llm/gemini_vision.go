package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/verifai-labs/verifai/internal/core"
)

// GeminiVision sends a document image plus an instruction prompt to a
// multimodal Gemini model and returns the raw text reply.
type GeminiVision struct {
	client    *genai.Client
	modelName string
}

func NewGeminiVision(ctx context.Context, apiKey, modelName string) (*GeminiVision, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiVision{client: cl, modelName: modelName}, nil
}

func (g *GeminiVision) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiVision) AnalyzeImage(ctx context.Context, data []byte, mimeType string, prompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)

	// genai wants the bare subtype ("jpeg", "png"), not the full MIME type.
	format := mimeType
	if i := strings.Index(mimeType, "/"); i >= 0 {
		format = mimeType[i+1:]
	}

	resp, err := m.GenerateContent(ctx,
		genai.Text(prompt),
		genai.ImageData(format, data),
	)
	if err != nil {
		return "", fmt.Errorf("gemini vision: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.VisionProvider = (*GeminiVision)(nil)
