package workflow

import (
	"sort"
	"strings"

	"github.com/verifai-labs/verifai/internal/models"
)

// requiredFields lists the fields a document of each type must carry.
// Validation rules are shared; only the field sets differ by type.
var requiredFields = map[models.DocumentType][]string{
	models.DocTypePassport:       {"Full Name", "Document Number", "Date of Birth", "Expiry Date", "MRZ Code"},
	models.DocTypeDriversLicense: {"Full Name", "Document Number", "Date of Birth", "Expiry Date", "License Class"},
	models.DocTypeNationalID:     {"Full Name", "Document Number", "Date of Birth"},
}

// normalizeValue is the equality rule for submitted vs extracted values:
// whitespace-trimmed, case-insensitive.
func normalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateCompliance checks that required fields for the document type
// are present and non-empty, and that customer-submitted values match
// the extracted ones. Every check yields a ValidationResult so the
// analyst sees exactly what was compared.
func ValidateCompliance(docType models.DocumentType, ocrFields []models.OcrField, submitted map[string]string) []models.ValidationResult {
	byName := make(map[string]models.OcrField, len(ocrFields))
	for _, f := range ocrFields {
		byName[normalizeValue(f.FieldName)] = f
	}

	var results []models.ValidationResult

	for _, name := range requiredFields[docType] {
		f, ok := byName[normalizeValue(name)]
		if !ok || strings.TrimSpace(f.Value) == "" {
			results = append(results, models.ValidationResult{
				FieldName:      name,
				SubmittedValue: submitted[name],
				ExtractedValue: "",
				IsMatch:        false,
			})
			continue
		}

		sub, has := lookupSubmitted(submitted, name)
		if !has {
			// Nothing submitted to dispute the extraction; present and
			// non-empty is enough.
			results = append(results, models.ValidationResult{
				FieldName:      name,
				ExtractedValue: f.Value,
				IsMatch:        true,
			})
			continue
		}

		results = append(results, models.ValidationResult{
			FieldName:      name,
			SubmittedValue: sub,
			ExtractedValue: f.Value,
			IsMatch:        normalizeValue(sub) == normalizeValue(f.Value),
		})
	}

	// Submitted values for non-required fields are validated too.
	for _, name := range sortedSubmittedKeys(submitted) {
		if isRequired(docType, name) {
			continue
		}
		f, ok := byName[normalizeValue(name)]
		if !ok {
			continue
		}
		results = append(results, models.ValidationResult{
			FieldName:      f.FieldName,
			SubmittedValue: submitted[name],
			ExtractedValue: f.Value,
			IsMatch:        normalizeValue(submitted[name]) == normalizeValue(f.Value),
		})
	}

	return results
}

// sortedSubmittedKeys keeps validation output deterministic regardless
// of map iteration order.
func sortedSubmittedKeys(submitted map[string]string) []string {
	keys := make([]string, 0, len(submitted))
	for k := range submitted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lookupSubmitted(submitted map[string]string, field string) (string, bool) {
	for k, v := range submitted {
		if normalizeValue(k) == normalizeValue(field) {
			return v, true
		}
	}
	return "", false
}

func isRequired(docType models.DocumentType, field string) bool {
	for _, name := range requiredFields[docType] {
		if normalizeValue(name) == normalizeValue(field) {
			return true
		}
	}
	return false
}
