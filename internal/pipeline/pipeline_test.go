package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medlens/internal/common/config"
	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/interactions"
	"medlens/internal/llm"
	"medlens/internal/models"
)

const demoReply = `{
  "summary": {"simple": "You have diabetes and high blood pressure.", "standard": "Type 2 diabetes and hypertension.", "detailed": "Type 2 diabetes mellitus and hypertension."},
  "medications": [
    {"name": "Metformin", "dosage": "500mg", "frequency": "twice a day with meals", "purpose": "Controls blood sugar", "warnings": ""},
    {"name": "Lisinopril", "dosage": "10mg", "frequency": "once daily", "purpose": "Lowers blood pressure", "warnings": ""},
    {"name": "Aspirin", "dosage": "81mg", "frequency": "once daily", "purpose": "Prevents clots", "warnings": ""}
  ],
  "diagnoses": [{"name": "Hypertension", "plain_language": "High blood pressure"}],
  "action_items": ["Follow up with Dr. Williams"],
  "dates": [{"event": "Follow-up appointment", "date": "March 7, 2026 at 10:00 AM"}],
  "warnings": ["Return to ER for chest pain"],
  "medication_schedule": {"morning": ["Metformin 500mg", "Lisinopril 10mg", "Aspirin 81mg"], "afternoon": [], "evening": ["Metformin 500mg"], "bedtime": []},
  "disclaimer": "Some other disclaimer the model made up."
}`

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, image []byte, filename string) (models.OcrResult, error) {
	args := m.Called(ctx, image, filename)
	return args.Get(0).(models.OcrResult), args.Error(1)
}

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) Check(ctx context.Context, names []string) []models.InteractionWarning {
	args := m.Called(ctx, names)
	return args.Get(0).([]models.InteractionWarning)
}

// scriptedProvider answers the n-th call with replies[n] while they last,
// then with reply.
type scriptedProvider struct {
	reply   string
	replies []string
	err     error
	prompts []string
}

func (s *scriptedProvider) Name() string     { return "scripted" }
func (s *scriptedProvider) Configured() bool { return true }
func (s *scriptedProvider) Invoke(ctx context.Context, req llm.Request) (string, error) {
	call := len(s.prompts)
	s.prompts = append(s.prompts, req.Prompt)
	if call < len(s.replies) {
		return s.replies[call], s.err
	}
	return s.reply, s.err
}

func newTestPipeline(t *testing.T, provider *scriptedProvider, ocr TextExtractor, checker InteractionChecker) *Pipeline {
	t.Helper()
	log := logger.NewTestLogger(t)
	return New(ocr, llm.NewClient(log, provider), checker, log, nil)
}

func conf(v float64) *float64 { return &v }

func TestAnalyze_TextDocument(t *testing.T) {
	provider := &scriptedProvider{reply: demoReply}
	checker := new(MockChecker)
	checker.On("Check", mock.Anything, []string{"Metformin", "Lisinopril", "Aspirin"}).
		Return([]models.InteractionWarning{{Drug: "Aspirin", Details: "May increase bleeding."}})
	ocr := new(MockExtractor)

	p := newTestPipeline(t, provider, ocr, checker)
	outcome, err := p.Analyze(context.Background(), DemoDocument(), "English")

	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.Nil(t, outcome.Sentinel)

	result := outcome.Result
	assert.Equal(t, DemoText, result.RawText)
	assert.Nil(t, result.OcrConfidence)
	assert.Nil(t, result.OcrWarning)
	assert.Equal(t, "English", result.Language)
	assert.Equal(t, models.Disclaimer, result.Disclaimer, "English results always carry the fixed disclaimer")
	assert.Equal(t, []models.InteractionWarning{{Drug: "Aspirin", Details: "May increase bleeding."}}, outcome.Interactions)

	require.Len(t, provider.prompts, 1)
	assert.True(t, strings.HasSuffix(provider.prompts[0], "DOCUMENT TEXT:\n"+DemoText))
	ocr.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
	checker.AssertExpectations(t)
}

func TestAnalyze_ResultJSONFields(t *testing.T) {
	checker := new(MockChecker)
	checker.On("Check", mock.Anything, mock.Anything).Return([]models.InteractionWarning{})

	p := newTestPipeline(t, &scriptedProvider{reply: demoReply}, new(MockExtractor), checker)
	outcome, err := p.Analyze(context.Background(), DemoDocument(), "")
	require.NoError(t, err)

	raw, err := json.Marshal(outcome.Result)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))

	for _, key := range []string{"summary", "medications", "diagnoses", "action_items", "dates", "warnings", "medication_schedule", "disclaimer", "rawText", "ocrConfidence", "ocrWarning", "language"} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "interactions")
	assert.Equal(t, "English", fields["language"])
}

func TestAnalyze_EmptyTextSkipsLLM(t *testing.T) {
	tests := []struct {
		name  string
		input models.DocumentInput
		ocr   models.OcrResult
	}{
		{name: "blank text", input: models.TextDocument(" \n\t ", models.SourcePaste)},
		{name: "empty text", input: models.TextDocument("", models.SourceVoice)},
		{name: "blank OCR", input: models.ImageDocument([]byte("img"), "a.png", "image/png", models.SourceCamera), ocr: models.OcrResult{Text: "  ", Confidence: conf(12)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{reply: demoReply}
			ocr := new(MockExtractor)
			ocr.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(tt.ocr, nil)
			checker := new(MockChecker)

			p := newTestPipeline(t, provider, ocr, checker)
			outcome, err := p.Analyze(context.Background(), tt.input, "English")

			require.NoError(t, err)
			assert.Nil(t, outcome.Result)
			require.NotNil(t, outcome.Sentinel)
			assert.Equal(t, models.SentinelEmptyText, outcome.Sentinel.Error)
			assert.Equal(t, "No text found in document.", outcome.Sentinel.Message)
			assert.Empty(t, provider.prompts, "no LLM call for empty text")
			checker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
		})
	}
}

func TestAnalyze_OCRConfidenceWarnings(t *testing.T) {
	tests := []struct {
		name       string
		confidence *float64
		want       *string
	}{
		{name: "45 is strong", confidence: conf(45), want: strPtr(StrongOCRWarning)},
		{name: "59.9 is strong", confidence: conf(59.9), want: strPtr(StrongOCRWarning)},
		{name: "60 is soft", confidence: conf(60), want: strPtr(SoftOCRWarning)},
		{name: "70 is soft", confidence: conf(70), want: strPtr(SoftOCRWarning)},
		{name: "80 is none", confidence: conf(80), want: nil},
		{name: "95 is none", confidence: conf(95), want: nil},
		{name: "unknown is none", confidence: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ocr := new(MockExtractor)
			ocr.On("Extract", mock.Anything, []byte("img"), "scan.jpg").
				Return(models.OcrResult{Text: DemoText, Confidence: tt.confidence}, nil)
			checker := new(MockChecker)
			checker.On("Check", mock.Anything, mock.Anything).Return([]models.InteractionWarning{})

			p := newTestPipeline(t, &scriptedProvider{reply: demoReply}, ocr, checker)
			outcome, err := p.Analyze(context.Background(), models.ImageDocument([]byte("img"), "scan.jpg", "image/jpeg", models.SourceUpload), "English")

			require.NoError(t, err)
			require.NotNil(t, outcome.Result)
			assert.Equal(t, tt.want, outcome.Result.OcrWarning)
			assert.Equal(t, tt.confidence, outcome.Result.OcrConfidence)
			assert.Equal(t, DemoText, outcome.Result.RawText)
		})
	}
}

func TestAnalyze_NotMedicalPropagated(t *testing.T) {
	provider := &scriptedProvider{reply: `{"error": "not_medical", "message": "This does not appear to be a medical document."}`}
	checker := new(MockChecker)

	p := newTestPipeline(t, provider, new(MockExtractor), checker)
	outcome, err := p.Analyze(context.Background(), models.TextDocument("Grocery list: eggs, milk", models.SourcePaste), "English")

	require.NoError(t, err)
	assert.Nil(t, outcome.Result)
	assert.Empty(t, outcome.Interactions)
	assert.Equal(t, &models.Sentinel{Error: models.SentinelNotMedical, Message: models.NotMedicalMessage}, outcome.Sentinel)
	checker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestAnalyze_NoMedicationsSkipsChecker(t *testing.T) {
	reply := `{"summary": {"simple": "a", "standard": "b", "detailed": "c"}, "medications": [], "diagnoses": [], "action_items": [], "dates": [], "warnings": [], "medication_schedule": {}}`
	checker := new(MockChecker)

	p := newTestPipeline(t, &scriptedProvider{reply: reply}, new(MockExtractor), checker)
	outcome, err := p.Analyze(context.Background(), models.TextDocument("Lab results normal.", models.SourcePaste), "English")

	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.NotNil(t, outcome.Interactions)
	assert.Empty(t, outcome.Interactions)
	checker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestAnalyze_ErrorsAreNotPartial(t *testing.T) {
	t.Run("ocr failure", func(t *testing.T) {
		ocr := new(MockExtractor)
		ocr.On("Extract", mock.Anything, mock.Anything, mock.Anything).
			Return(models.OcrResult{}, errors.NewOCRFailedError(assert.AnError))

		provider := &scriptedProvider{reply: demoReply}
		p := newTestPipeline(t, provider, ocr, new(MockChecker))
		outcome, err := p.Analyze(context.Background(), models.ImageDocument([]byte("img"), "", "", models.SourceCamera), "English")

		assert.Nil(t, outcome)
		assert.True(t, errors.HasCode(err, errors.ErrCodeOCRFailed))
		assert.Empty(t, provider.prompts)
	})

	t.Run("malformed llm reply", func(t *testing.T) {
		p := newTestPipeline(t, &scriptedProvider{reply: "I cannot help with that."}, new(MockExtractor), new(MockChecker))
		outcome, err := p.Analyze(context.Background(), DemoDocument(), "English")

		assert.Nil(t, outcome)
		assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedResponse))
	})

	t.Run("provider failure", func(t *testing.T) {
		provider := &scriptedProvider{err: errors.NewProviderError("scripted", 503, "unavailable", nil)}
		p := newTestPipeline(t, provider, new(MockExtractor), new(MockChecker))
		outcome, err := p.Analyze(context.Background(), DemoDocument(), "English")

		assert.Nil(t, outcome)
		assert.True(t, errors.HasCode(err, errors.ErrCodeProvider))
	})
}

func TestAnalyze_TranslatedDisclaimerKept(t *testing.T) {
	reply := strings.Replace(demoReply, "Some other disclaimer the model made up.", "Este resumen es solo informativo.", 1)
	checker := new(MockChecker)
	checker.On("Check", mock.Anything, mock.Anything).Return([]models.InteractionWarning{})
	provider := &scriptedProvider{reply: reply}

	p := newTestPipeline(t, provider, new(MockExtractor), checker)
	outcome, err := p.Analyze(context.Background(), DemoDocument(), "Spanish")

	require.NoError(t, err)
	assert.Equal(t, "Spanish", outcome.Result.Language)
	assert.Equal(t, "Este resumen es solo informativo.", outcome.Result.Disclaimer)
	assert.Contains(t, provider.prompts[0], "Translate ALL output text into Spanish")
}

func TestAnalyzeDocument_NoInteractionStage(t *testing.T) {
	checker := new(MockChecker)
	p := newTestPipeline(t, &scriptedProvider{reply: demoReply}, new(MockExtractor), checker)

	outcome, err := p.AnalyzeDocument(context.Background(), DemoDocument(), "English")

	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.Nil(t, outcome.Interactions)
	checker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestReanalyze_NeverRunsOCR(t *testing.T) {
	ocr := new(MockExtractor)
	checker := new(MockChecker)
	checker.On("Check", mock.Anything, mock.Anything).Return([]models.InteractionWarning{})
	provider := &scriptedProvider{reply: demoReply}

	p := newTestPipeline(t, provider, ocr, checker)
	outcome, err := p.Reanalyze(context.Background(), DemoText, "French")

	require.NoError(t, err)
	assert.Equal(t, "French", outcome.Result.Language)
	ocr.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

type labelSource map[string]string

func (l labelSource) Name() string { return "fixture" }
func (l labelSource) Lookup(ctx context.Context, drug string) (string, bool, error) {
	text, ok := l[drug]
	return text, ok, nil
}

func TestAnalyze_DischargeSummaryEndToEnd(t *testing.T) {
	log := logger.NewTestLogger(t)
	summary := "Aspirin can raise your bleeding risk. Ask your doctor before adding blood thinners."
	analysis := &scriptedProvider{replies: []string{"```json\n" + demoReply + "\n```", summary}}
	client := llm.NewClient(log, analysis)

	source := labelSource{"Aspirin": "Aspirin may enhance the bleeding risk of anticoagulants."}
	checker := interactions.NewChecker(source, client, config.InteractionsConfig{MaxConcurrentLookups: 1}, log)

	p := New(new(MockExtractor), client, checker, log, nil)
	outcome, err := p.Analyze(context.Background(), DemoDocument(), "English")
	require.NoError(t, err)

	names := ExtractMedicationNames(outcome.Result)
	assert.Contains(t, names, "Metformin")
	assert.Contains(t, names, "Aspirin")

	var followUp *models.DateEvent
	for i := range outcome.Result.Dates {
		if strings.Contains(outcome.Result.Dates[i].Event, "Follow-up") {
			followUp = &outcome.Result.Dates[i]
		}
	}
	require.NotNil(t, followUp)
	assert.Contains(t, followUp.Date, "March 7, 2026")
	assert.Equal(t, models.Disclaimer, outcome.Result.Disclaimer)

	require.Len(t, outcome.Interactions, 1)
	assert.Equal(t, "Aspirin", outcome.Interactions[0].Drug)
	assert.Equal(t, summary, outcome.Interactions[0].Details)
	require.Len(t, analysis.prompts, 2)
	assert.Contains(t, analysis.prompts[1], "Aspirin may enhance the bleeding risk")
}

func TestAnalyze_MissingScheduleSlotsAreEmpty(t *testing.T) {
	reply := strings.Replace(demoReply, `"afternoon": [], `, "", 1)
	reply = strings.Replace(reply, `, "bedtime": []`, "", 1)
	require.NotEqual(t, demoReply, reply)

	checker := new(MockChecker)
	checker.On("Check", mock.Anything, mock.Anything).Return([]models.InteractionWarning{})
	p := newTestPipeline(t, &scriptedProvider{reply: reply}, new(MockExtractor), checker)

	outcome, err := p.Analyze(context.Background(), models.TextDocument(DemoText, models.SourcePaste), "English")
	require.NoError(t, err)

	schedule := outcome.Result.MedicationSchedule
	assert.Equal(t, []string{}, schedule.Afternoon)
	assert.Equal(t, []string{}, schedule.Bedtime)
	assert.Len(t, schedule.Morning, 3)

	encoded, err := json.Marshal(schedule)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "null")
}

func TestExtractMedicationNames(t *testing.T) {
	assert.Equal(t, []string{}, ExtractMedicationNames(nil))
	assert.Equal(t, []string{}, ExtractMedicationNames(&models.AnalysisResult{}))

	result := &models.AnalysisResult{AnalysisFields: models.AnalysisFields{
		Medications: []models.Medication{{Name: "Metformin"}, {Name: "Aspirin"}, {Name: "Metformin"}},
	}}
	assert.Equal(t, []string{"Metformin", "Aspirin", "Metformin"}, ExtractMedicationNames(result))
}

func TestIsSupportedLanguage(t *testing.T) {
	assert.True(t, IsSupportedLanguage(""))
	assert.True(t, IsSupportedLanguage("Korean"))
	assert.False(t, IsSupportedLanguage("Klingon"))
}

func strPtr(s string) *string { return &s }
