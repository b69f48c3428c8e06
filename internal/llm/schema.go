package llm

import "medlens/internal/common/validation"

// analysisSchema is the contract for a medical-document response. Free-text
// fields tolerate null because models emit it for "none".
const analysisSchema = `{
  "type": "object",
  "required": ["summary", "medications", "diagnoses", "action_items", "dates", "warnings", "medication_schedule"],
  "definitions": {
    "text": {"type": ["string", "null"]},
    "texts": {"type": "array", "items": {"type": "string"}}
  },
  "properties": {
    "summary": {
      "type": "object",
      "required": ["simple", "standard", "detailed"],
      "properties": {
        "simple": {"type": "string"},
        "standard": {"type": "string"},
        "detailed": {"type": "string"}
      }
    },
    "medications": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "dosage": {"$ref": "#/definitions/text"},
          "frequency": {"$ref": "#/definitions/text"},
          "purpose": {"$ref": "#/definitions/text"},
          "warnings": {"$ref": "#/definitions/text"}
        }
      }
    },
    "diagnoses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "plain_language": {"$ref": "#/definitions/text"}
        }
      }
    },
    "action_items": {"$ref": "#/definitions/texts"},
    "dates": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "event": {"$ref": "#/definitions/text"},
          "date": {"$ref": "#/definitions/text"}
        }
      }
    },
    "warnings": {"$ref": "#/definitions/texts"},
    "medication_schedule": {
      "type": "object",
      "properties": {
        "morning": {"$ref": "#/definitions/texts"},
        "afternoon": {"$ref": "#/definitions/texts"},
        "evening": {"$ref": "#/definitions/texts"},
        "bedtime": {"$ref": "#/definitions/texts"}
      }
    },
    "disclaimer": {"$ref": "#/definitions/text"}
  }
}`

var responseSchema = validation.MustCompile(analysisSchema)
