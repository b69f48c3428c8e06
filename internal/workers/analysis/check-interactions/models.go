package checkinteractions

import "medlens/internal/models"

type Input struct {
	MedicationNames []string `json:"medicationNames"`
}

type Output struct {
	Interactions     []models.InteractionWarning `json:"interactions"`
	InteractionCount int                         `json:"interactionCount"`
}

const inputSchema = `{
	"type": "object",
	"required": ["medicationNames"],
	"properties": {
		"medicationNames": {
			"type": "array",
			"items": {"type": "string"}
		}
	}
}`
