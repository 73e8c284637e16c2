package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// VisionProvider analyzes a document image with a prompt and returns the
// model's textual reply. The field extractor parses that reply; this
// interface stays vendor-agnostic.
type VisionProvider interface {
	AnalyzeImage(ctx context.Context, data []byte, mimeType string, prompt string) (string, error)
}
