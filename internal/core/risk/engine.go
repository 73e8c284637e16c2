// Package risk computes the deterministic 0-100 risk score for a
// verification. Scoring is pure: no I/O, no clock, no randomness, so the
// same inputs always produce the same score and insights (audit
// requirement).
package risk

import (
	"fmt"
	"math"

	"github.com/verifai-labs/verifai/internal/models"
)

// Scoring weights. The score is a clamped sum of penalties.
const (
	// Fields below this confidence accrue an OCR-quality penalty.
	confidenceFloor = 70
	// Per-field OCR penalty: (floor - confidence) * ocrPenaltyRate,
	// capped at ocrPenaltyCap.
	ocrPenaltyRate = 0.6
	ocrPenaltyCap  = 20
	// A run with no extracted fields at all is treated as a total OCR
	// failure rather than a clean sheet.
	emptyOcrPenalty = 40
	// Per-match fraud penalty: similarity * (confidenceScore/100) * fraudPenaltyScale.
	fraudPenaltyScale = 65
	// Severity cutoffs within a penalty class.
	fraudHighSimilarity = 0.85
	lowConfidenceHigh   = 40
	// Per-field validation mismatch penalty.
	mismatchPenalty = 15
)

// FraudMatch pairs a known fraud pattern with its similarity to the
// document under review.
type FraudMatch struct {
	Pattern    models.FraudPattern
	Similarity float64
}

// Score combines OCR quality, fraud-pattern matches and validation
// mismatches into a risk score, level and insight list. It never fails
// for well-formed (possibly empty) inputs.
func Score(ocrFields []models.OcrField, matches []FraudMatch, validations []models.ValidationResult, settings models.Settings) (int, models.RiskLevel, []models.RiskInsight) {
	total := 0
	var insights []models.RiskInsight

	if len(ocrFields) == 0 {
		total += emptyOcrPenalty
		insights = append(insights, models.RiskInsight{
			Category:    models.InsightOcrQuality,
			Description: "No fields could be extracted from the document",
			Severity:    "high",
		})
	}
	for _, f := range ocrFields {
		if f.Confidence >= confidenceFloor {
			continue
		}
		p := int(math.Round(float64(confidenceFloor-f.Confidence) * ocrPenaltyRate))
		if p > ocrPenaltyCap {
			p = ocrPenaltyCap
		}
		total += p

		severity := "medium"
		if f.Confidence < lowConfidenceHigh {
			severity = "high"
		}
		insights = append(insights, models.RiskInsight{
			Category:    models.InsightOcrQuality,
			Description: fmt.Sprintf("Low OCR confidence on %q (%d%%)", f.FieldName, f.Confidence),
			Severity:    severity,
		})
	}

	for _, m := range matches {
		p := int(math.Round(m.Similarity * float64(m.Pattern.ConfidenceScore) / 100 * fraudPenaltyScale))
		total += p

		severity := "medium"
		if m.Similarity >= fraudHighSimilarity {
			severity = "high"
		}
		insights = append(insights, models.RiskInsight{
			Category:    models.InsightFraudPattern,
			Description: fmt.Sprintf("Matched fraud pattern %q (%s, similarity %.0f%%)", m.Pattern.Name, m.Pattern.Technique, m.Similarity*100),
			Severity:    severity,
		})
	}

	for _, v := range validations {
		if v.IsMatch {
			continue
		}
		total += mismatchPenalty
		insights = append(insights, models.RiskInsight{
			Category:    models.InsightDataConsistency,
			Description: fmt.Sprintf("Submitted value for %q does not match extracted value", v.FieldName),
			Severity:    "medium",
		})
	}

	score := clamp(total, 0, 100)
	return score, LevelFor(score, settings), insights
}

// LevelFor maps a score to its risk level against the given thresholds.
// Boundary semantics are normative: score < autoApproveThreshold is low,
// score >= highRiskThreshold is high, everything between is medium.
func LevelFor(score int, settings models.Settings) models.RiskLevel {
	switch {
	case score < settings.AutoApproveThreshold:
		return models.RiskLow
	case score >= settings.HighRiskThreshold:
		return models.RiskHigh
	default:
		return models.RiskMedium
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
