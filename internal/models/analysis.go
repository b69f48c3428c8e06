// internal/models/analysis.go
package models

// Disclaimer is the fixed string every English result carries.
const Disclaimer = "This summary is for informational purposes only and is not a substitute for professional medical advice. Always consult your healthcare provider with questions about your care."

// ReadingLevel selects one of the three summaries.
type ReadingLevel string

const (
	ReadingLevelSimple   ReadingLevel = "simple"
	ReadingLevelStandard ReadingLevel = "standard"
	ReadingLevelDetailed ReadingLevel = "detailed"
)

type Summary struct {
	Simple   string `json:"simple"`
	Standard string `json:"standard"`
	Detailed string `json:"detailed"`
}

// At returns the summary for level, falling back to the simple one for an
// unknown level or an empty text.
func (s Summary) At(level ReadingLevel) string {
	var text string
	switch level {
	case ReadingLevelStandard:
		text = s.Standard
	case ReadingLevelDetailed:
		text = s.Detailed
	default:
		text = s.Simple
	}
	if text == "" {
		return s.Simple
	}
	return text
}

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Purpose   string `json:"purpose"`
	Warnings  string `json:"warnings"`
}

type Diagnosis struct {
	Name          string `json:"name"`
	PlainLanguage string `json:"plain_language"`
}

type DateEvent struct {
	Event string `json:"event"`
	Date  string `json:"date"`
}

type MedicationSchedule struct {
	Morning   []string `json:"morning"`
	Afternoon []string `json:"afternoon"`
	Evening   []string `json:"evening"`
	Bedtime   []string `json:"bedtime"`
}

// AnalysisFields is what the LLM returns for a medical document.
type AnalysisFields struct {
	Summary            Summary            `json:"summary"`
	Medications        []Medication       `json:"medications"`
	Diagnoses          []Diagnosis        `json:"diagnoses"`
	ActionItems        []string           `json:"action_items"`
	Dates              []DateEvent        `json:"dates"`
	Warnings           []string           `json:"warnings"`
	MedicationSchedule MedicationSchedule `json:"medication_schedule"`
	Disclaimer         string             `json:"disclaimer"`
}

// AnalysisResult is the LLM fields plus what the pipeline knows about the input.
type AnalysisResult struct {
	AnalysisFields
	RawText       string   `json:"rawText"`
	OcrConfidence *float64 `json:"ocrConfidence"`
	OcrWarning    *string  `json:"ocrWarning"`
	Language      string   `json:"language"`
}

// SentinelCode names the terminal input conditions.
type SentinelCode string

const (
	SentinelEmptyText  SentinelCode = "empty_text"
	SentinelNotMedical SentinelCode = "not_medical"
)

const (
	EmptyTextMessage  = "No text found in document."
	NotMedicalMessage = "This does not appear to be a medical document."
)

// Sentinel reports a document the pipeline cannot analyze. It is an outcome,
// not a failure.
type Sentinel struct {
	Error   SentinelCode `json:"error"`
	Message string       `json:"message"`
}

func EmptyTextSentinel() *Sentinel {
	return &Sentinel{Error: SentinelEmptyText, Message: EmptyTextMessage}
}

func NotMedicalSentinel(message string) *Sentinel {
	if message == "" {
		message = NotMedicalMessage
	}
	return &Sentinel{Error: SentinelNotMedical, Message: message}
}

// InteractionWarning is a patient-readable summary of one drug's label.
type InteractionWarning struct {
	Drug    string `json:"drug"`
	Details string `json:"details"`
}

// Outcome holds exactly one of Result or Sentinel. Interactions is only set
// alongside a Result.
type Outcome struct {
	Result       *AnalysisResult      `json:"result,omitempty"`
	Sentinel     *Sentinel            `json:"sentinel,omitempty"`
	Interactions []InteractionWarning `json:"interactions,omitempty"`
}

func ResultOutcome(result *AnalysisResult, interactions []InteractionWarning) *Outcome {
	if interactions == nil {
		interactions = []InteractionWarning{}
	}
	return &Outcome{Result: result, Interactions: interactions}
}

func SentinelOutcome(s *Sentinel) *Outcome {
	return &Outcome{Sentinel: s}
}

// IsSentinel reports whether the document was rejected.
func (o *Outcome) IsSentinel() bool {
	return o != nil && o.Sentinel != nil
}
