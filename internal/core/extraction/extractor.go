// Package extraction turns raw document bytes into named OCR fields with
// per-field confidence. It is a thin capability wrapper: no persistence,
// no scoring, just the external vision/LLM call plus response parsing.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/core/verr"
	"github.com/verifai-labs/verifai/internal/models"
)

// DocumentAnalysis is the model's overall read of the document,
// alongside the individual fields.
type DocumentAnalysis struct {
	DetectedType    models.DocumentType `json:"detected_type"`
	QualityScore    int                 `json:"quality_score"`
	IsReadable      bool                `json:"is_readable"`
	PotentialIssues []string            `json:"potential_issues"`
}

// Result is the outcome of one extraction run. A readable document with
// no detectable fields yields an empty Fields slice, not an error.
type Result struct {
	Fields   []models.OcrField
	Analysis DocumentAnalysis
}

type Extractor struct {
	vision core.VisionProvider
	llm    core.LLMProvider
}

func NewExtractor(vision core.VisionProvider, llm core.LLMProvider) *Extractor {
	return &Extractor{vision: vision, llm: llm}
}

// Extract runs field extraction over the document. Images go straight to
// the vision capability; PDFs are converted to text first and structured
// by the LLM. Failures are classified per the verr taxonomy so the
// workflow can fail closed.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string, docType models.DocumentType) (*Result, error) {
	var reply string
	var err error

	if isPDF(mimeType) {
		reply, err = e.extractFromPDF(ctx, data, docType)
	} else {
		reply, err = e.vision.AnalyzeImage(ctx, data, mimeType, extractionPrompt(docType))
		if err != nil {
			err = fmt.Errorf("%w: %v", verr.ErrExtractionUnavailable, err)
		}
	}
	if err != nil {
		return nil, err
	}

	return parseExtractionReply(reply)
}

func (e *Extractor) extractFromPDF(ctx context.Context, data []byte, docType models.DocumentType) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return "", fmt.Errorf("%w: docconv: %v", verr.ErrUnreadableDocument, err)
	}
	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", fmt.Errorf("%w: pdf contains no extractable text", verr.ErrUnreadableDocument)
	}

	prompt := extractionPrompt(docType) + "\n\nDocument text:\n" + text
	reply, err := e.llm.Generate(ctx, "", prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", verr.ErrExtractionUnavailable, err)
	}
	return reply, nil
}

func isPDF(mimeType string) bool {
	return strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf")
}

// extractionPrompt asks for the exact JSON shape parseExtractionReply
// expects. Only fields actually visible should be included; confidence
// reflects text clarity.
func extractionPrompt(docType models.DocumentType) string {
	kind := strings.ReplaceAll(string(docType), "_", " ")
	return fmt.Sprintf(`Analyze this %s document and extract all visible text fields.

Return a JSON object with the following structure:
{
    "extracted_fields": [
        {"fieldName": "Full Name", "value": "extracted value", "confidence": 95, "boundingBox": {"x": 15, "y": 20, "width": 30, "height": 5}},
        {"fieldName": "Document Number", "value": "extracted value", "confidence": 98},
        {"fieldName": "Date of Birth", "value": "YYYY-MM-DD format", "confidence": 92},
        {"fieldName": "Expiry Date", "value": "YYYY-MM-DD format", "confidence": 90},
        {"fieldName": "Issuing Country", "value": "country name", "confidence": 88}
    ],
    "document_analysis": {
        "detected_type": "passport|drivers_license|national_id",
        "quality_score": 85,
        "is_readable": true,
        "potential_issues": ["list any visible issues like blur, damage, etc"]
    }
}

Only include fields that are actually visible in the document. Estimate confidence based on text clarity. The boundingBox is optional and given in percent of the document dimensions.`, kind)
}

type extractionReply struct {
	ExtractedFields []struct {
		FieldName   string              `json:"fieldName"`
		Value       string              `json:"value"`
		Confidence  int                 `json:"confidence"`
		BoundingBox *models.BoundingBox `json:"boundingBox"`
	} `json:"extracted_fields"`
	DocumentAnalysis *DocumentAnalysis `json:"document_analysis"`
}

// parseExtractionReply pulls the JSON object out of a model reply that
// may be wrapped in prose or markdown fences.
func parseExtractionReply(reply string) (*Result, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in extraction reply", verr.ErrUnreadableDocument)
	}

	var wire extractionReply
	if err := json.Unmarshal([]byte(reply[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("%w: malformed extraction reply: %v", verr.ErrUnreadableDocument, err)
	}

	out := &Result{
		Analysis: DocumentAnalysis{IsReadable: true},
	}
	if wire.DocumentAnalysis != nil {
		out.Analysis = *wire.DocumentAnalysis
	}

	for _, f := range wire.ExtractedFields {
		conf := f.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}
		// A field the model named but could not read still appears, with
		// low confidence, so downstream steps see the absence explicitly.
		if f.Value == "" && conf > 10 {
			conf = 10
		}
		out.Fields = append(out.Fields, models.OcrField{
			FieldName:   f.FieldName,
			Value:       f.Value,
			Confidence:  conf,
			BoundingBox: f.BoundingBox,
		})
	}
	return out, nil
}
