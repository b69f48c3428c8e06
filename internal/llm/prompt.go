package llm

import (
	"fmt"

	"medlens/internal/models"
)

// DefaultLanguage is assumed when a caller passes no language.
const DefaultLanguage = "English"

const analysisPrompt = `You are a medical document translator designed to help patients understand their healthcare documents.

Given the following medical document text, return a JSON object with:

1. "summary": An OBJECT with three keys, each a plain-language explanation at a different reading level:
   - "simple": 5th grade reading level: short sentences, no medical terms at all
   - "standard": 8th grade reading level: some medical terms with definitions in parentheses
   - "detailed": 12th grade reading level: preserves more clinical detail with explanations
2. "medications": An array of objects, each with:
   - "name": medication name
   - "dosage": dosage as written
   - "frequency": how often to take it
   - "purpose": plain-language explanation of what it's for
   - "warnings": any warnings mentioned (empty string if none)
3. "diagnoses": An array of objects with:
   - "name": diagnosis name
   - "plain_language": what this means in simple terms
4. "action_items": An array of strings: specific things the patient needs to do (appointments, medications, lifestyle changes, follow-ups)
5. "dates": An array of objects with "event" and "date" fields for any important dates mentioned
6. "warnings": An array of strings: any critical warnings or red flags in the document
7. "medication_schedule": An object organizing medications by time of day:
   - "morning": array of strings (e.g., "Metformin 500mg, take with breakfast")
   - "afternoon": array of strings (empty array if none)
   - "evening": array of strings (e.g., "Metformin 500mg, take with dinner")
   - "bedtime": array of strings (e.g., "Insulin glargine 20 units, inject under the skin")
   Base this on the frequency and instructions for each medication.
8. "disclaimer": Always include this exact string: "%s"

If the document does not appear to be a medical document, return:
{"error": "not_medical", "message": "%s"}
%s

Return ONLY valid JSON. No markdown fences, no explanation outside the JSON.

DOCUMENT TEXT:
%s`

// BuildPrompt renders the structured-extraction instruction for one document.
// Any language other than English adds a translation instruction that keeps
// medication names untranslated.
func BuildPrompt(documentText, language string) string {
	if language == "" {
		language = DefaultLanguage
	}

	var languageInstruction string
	if language != DefaultLanguage {
		languageInstruction = fmt.Sprintf("\n\nIMPORTANT: Translate ALL output text into %[1]s. Every field value (summaries, medication purposes, diagnoses explanations, action items, warnings, disclaimer) must be written in %[1]s. Keep medication names in their original English/medical form.", language)
	}

	return fmt.Sprintf(analysisPrompt, models.Disclaimer, models.NotMedicalMessage, languageInstruction, documentText)
}
