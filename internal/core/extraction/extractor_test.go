package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
)

type visionMock struct {
	analyzeFn func(ctx context.Context, data []byte, mimeType, prompt string) (string, error)
}

func (m *visionMock) AnalyzeImage(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
	return m.analyzeFn(ctx, data, mimeType, prompt)
}

type llmMock struct {
	generateFn func(ctx context.Context, system, user string) (string, error)
}

func (m *llmMock) Generate(ctx context.Context, system, user string) (string, error) {
	return m.generateFn(ctx, system, user)
}

func TestExtractParsesProseWrappedReply(t *testing.T) {
	reply := "Here is the analysis you asked for:\n```json\n" + `{
  "extracted_fields": [
    {"fieldName": "Full Name", "value": "Jane Doe", "confidence": 97, "boundingBox": {"x": 10, "y": 20, "width": 30, "height": 5}},
    {"fieldName": "Document Number", "value": "P1234567", "confidence": 95}
  ],
  "document_analysis": {
    "detected_type": "passport",
    "quality_score": 88,
    "is_readable": true,
    "potential_issues": ["slight glare"]
  }
}` + "\n```\nLet me know if you need anything else."

	vision := &visionMock{
		analyzeFn: func(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
			return reply, nil
		},
	}
	e := NewExtractor(vision, nil)

	res, err := e.Extract(context.Background(), []byte("img"), "image/png", models.DocTypePassport)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(res.Fields))
	}
	if res.Fields[0].BoundingBox == nil || res.Fields[0].BoundingBox.X != 10 {
		t.Fatalf("first field bounding box = %+v, want x=10", res.Fields[0].BoundingBox)
	}
	if res.Fields[1].BoundingBox != nil {
		t.Fatalf("second field bounding box = %+v, want nil (optional)", res.Fields[1].BoundingBox)
	}
	if res.Analysis.DetectedType != models.DocTypePassport || res.Analysis.QualityScore != 88 {
		t.Fatalf("analysis = %+v", res.Analysis)
	}
}

func TestExtractConfidenceClamping(t *testing.T) {
	reply := `{
  "extracted_fields": [
    {"fieldName": "Full Name", "value": "Jane Doe", "confidence": 150},
    {"fieldName": "MRZ Code", "value": "abc", "confidence": -5},
    {"fieldName": "Expiry Date", "value": "", "confidence": 80}
  ]
}`
	vision := &visionMock{
		analyzeFn: func(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
			return reply, nil
		},
	}
	e := NewExtractor(vision, nil)

	res, err := e.Extract(context.Background(), []byte("img"), "image/jpeg", models.DocTypePassport)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []int{100, 0, 10} // over-range, under-range, empty value
	for i, f := range res.Fields {
		if f.Confidence != want[i] {
			t.Errorf("field %q confidence = %d, want %d", f.FieldName, f.Confidence, want[i])
		}
	}
}

func TestExtractNoFieldsIsNotAnError(t *testing.T) {
	reply := `{"extracted_fields": [], "document_analysis": {"detected_type": "passport", "is_readable": true}}`
	vision := &visionMock{
		analyzeFn: func(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
			return reply, nil
		},
	}
	e := NewExtractor(vision, nil)

	res, err := e.Extract(context.Background(), []byte("img"), "image/jpeg", models.DocTypePassport)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Fields) != 0 {
		t.Fatalf("fields = %v, want empty", res.Fields)
	}
}

func TestExtractNoJSONInReply(t *testing.T) {
	vision := &visionMock{
		analyzeFn: func(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
			return "I'm sorry, I cannot read this image.", nil
		},
	}
	e := NewExtractor(vision, nil)

	_, err := e.Extract(context.Background(), []byte("img"), "image/jpeg", models.DocTypePassport)
	if !errors.Is(err, verr.ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
}

func TestExtractVisionFailure(t *testing.T) {
	vision := &visionMock{
		analyzeFn: func(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
			return "", errors.New("deadline exceeded")
		},
	}
	e := NewExtractor(vision, nil)

	_, err := e.Extract(context.Background(), []byte("img"), "image/jpeg", models.DocTypePassport)
	if !errors.Is(err, verr.ErrExtractionUnavailable) {
		t.Fatalf("err = %v, want ErrExtractionUnavailable", err)
	}
}

func TestExtractionPromptNamesDocumentType(t *testing.T) {
	var gotPrompt string
	vision := &visionMock{
		analyzeFn: func(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
			gotPrompt = prompt
			return `{"extracted_fields": []}`, nil
		},
	}
	e := NewExtractor(vision, nil)

	if _, err := e.Extract(context.Background(), []byte("img"), "image/jpeg", models.DocTypeDriversLicense); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"drivers license", "extracted_fields", "document_analysis"} {
		if !strings.Contains(gotPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gotPrompt)
		}
	}
}
