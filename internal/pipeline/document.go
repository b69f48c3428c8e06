package pipeline

import "medlens/internal/models"

const (
	StrongOCRWarning = "We had trouble reading this document clearly. For best results, try a clearer photo or type the text directly."
	SoftOCRWarning   = "Some parts of this document were difficult to read. Please verify the information below."
)

// ConfidenceWarning maps OCR confidence to the advisory shown with the
// result: below 60 strong, below 80 soft, otherwise none. Unknown
// confidence gets no warning.
func ConfidenceWarning(confidence *float64) *string {
	if confidence == nil {
		return nil
	}
	var warning string
	switch c := *confidence; {
	case c < 60:
		warning = StrongOCRWarning
	case c < 80:
		warning = SoftOCRWarning
	default:
		return nil
	}
	return &warning
}

// ExtractMedicationNames lists medication names in result order, duplicates
// included. It is never nil.
func ExtractMedicationNames(result *models.AnalysisResult) []string {
	if result == nil || len(result.Medications) == 0 {
		return []string{}
	}
	names := make([]string, 0, len(result.Medications))
	for _, m := range result.Medications {
		names = append(names, m.Name)
	}
	return names
}

// SupportedLanguages are the output languages offered to users.
var SupportedLanguages = []string{"English", "Spanish", "French", "Chinese", "Korean", "Vietnamese"}

// IsSupportedLanguage reports whether language is offered. Empty means English.
func IsSupportedLanguage(language string) bool {
	if language == "" {
		return true
	}
	for _, l := range SupportedLanguages {
		if l == language {
			return true
		}
	}
	return false
}

// DemoText is the sample discharge summary offered to first-time users.
const DemoText = `DISCHARGE SUMMARY
Patient: John Doe, DOB: 03/15/1965
Date of Discharge: 02/21/2026
Diagnosis: Type 2 Diabetes Mellitus, Hypertension

Medications:
- Metformin 500mg PO BID with meals
- Lisinopril 10mg PO daily
- Aspirin 81mg PO daily

Instructions:
- Monitor blood glucose levels daily before breakfast
- Follow up with Dr. Williams in 2 weeks
- Low sodium diet recommended
- Return to ER if experiencing chest pain, severe headache, or blood glucose >400mg/dL

Follow-up: Dr. Williams, March 7, 2026 at 10:00 AM`

// DemoDocument returns the sample as a pipeline input.
func DemoDocument() models.DocumentInput {
	return models.TextDocument(DemoText, models.SourceDemo)
}
