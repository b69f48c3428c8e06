package savelastresult

import "medlens/internal/models"

type Input struct {
	Analysis     *models.AnalysisResult      `json:"analysis"`
	Interactions []models.InteractionWarning `json:"interactions"`
}

type Output struct {
	LastResultSaved bool `json:"lastResultSaved"`
}

const inputSchema = `{
	"type": "object",
	"required": ["analysis"],
	"properties": {
		"analysis": {
			"type": "object",
			"required": ["rawText"],
			"properties": {"rawText": {"type": "string"}}
		},
		"interactions": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["drug", "details"]
			}
		}
	}
}`
