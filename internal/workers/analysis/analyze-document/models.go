package analyzedocument

import "medlens/internal/models"

// Input carries either pasted text or a base64 encoded image.
type Input struct {
	Text        string        `json:"text"`
	ImageBase64 string        `json:"imageBase64"`
	Filename    string        `json:"filename"`
	Source      models.Source `json:"source"`
	Language    string        `json:"language"`
}

type Output struct {
	Analysis        *models.AnalysisResult `json:"analysis"`
	MedicationNames []string               `json:"medicationNames"`
	MedicationCount int                    `json:"medicationCount"`
}

const inputSchema = `{
	"type": "object",
	"properties": {
		"text":        {"type": "string"},
		"imageBase64": {"type": "string"},
		"filename":    {"type": "string"},
		"source":      {"enum": ["camera", "upload", "paste", "voice", "demo"]},
		"language":    {"type": "string"}
	}
}`
