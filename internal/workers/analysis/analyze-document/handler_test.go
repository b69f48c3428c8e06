package analyzedocument

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/models"
)

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) AnalyzeDocument(ctx context.Context, input models.DocumentInput, language string) (*models.Outcome, error) {
	args := m.Called(ctx, input, language)
	outcome, _ := args.Get(0).(*models.Outcome)
	return outcome, args.Error(1)
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "medlens-analysis",
		ElementId:          "Activity_AnalyzeDocument",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func analysis(language string, names ...string) *models.Outcome {
	meds := make([]models.Medication, 0, len(names))
	for _, n := range names {
		meds = append(meds, models.Medication{Name: n})
	}
	return &models.Outcome{Result: &models.AnalysisResult{
		AnalysisFields: models.AnalysisFields{Medications: meds, Disclaimer: models.Disclaimer},
		RawText:        "discharge summary",
		Language:       language,
	}}
}

func newTestHandler(t *testing.T) (*Handler, *MockAnalyzer) {
	analyzer := new(MockAnalyzer)
	return NewHandler(&Config{Timeout: 5 * time.Second}, analyzer, logger.NewTestLogger(t)), analyzer
}

func TestHandler_ParseInput(t *testing.T) {
	tests := []struct {
		name      string
		variables map[string]interface{}
		wantErr   bool
		want      *Input
	}{
		{
			name:      "text document",
			variables: map[string]interface{}{"text": "Metformin 500mg", "language": "Spanish", "source": "paste"},
			want:      &Input{Text: "Metformin 500mg", Language: "Spanish", Source: models.SourcePaste},
		},
		{
			name:      "other process variables are ignored",
			variables: map[string]interface{}{"imageBase64": "aGk=", "filename": "scan.jpg", "patientRef": 7},
			want:      &Input{ImageBase64: "aGk=", Filename: "scan.jpg"},
		},
		{
			name:      "unknown source",
			variables: map[string]interface{}{"text": "x", "source": "fax"},
			wantErr:   true,
		},
		{
			name:      "text of the wrong type",
			variables: map[string]interface{}{"text": 42},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)

			input, err := h.parseInput(createMockJob(1, tt.variables))

			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, input)
		})
	}
}

func TestHandler_Execute_Text(t *testing.T) {
	h, analyzer := newTestHandler(t)
	analyzer.On("AnalyzeDocument", mock.Anything, models.TextDocument("Metformin 500mg", models.SourcePaste), "French").
		Return(analysis("French", "Metformin", "Lisinopril"), nil).Once()

	output, err := h.Execute(context.Background(), &Input{Text: "Metformin 500mg", Language: "French"})

	require.NoError(t, err)
	assert.Equal(t, []string{"Metformin", "Lisinopril"}, output.MedicationNames)
	assert.Equal(t, 2, output.MedicationCount)
	assert.Equal(t, "French", output.Analysis.Language)
	analyzer.AssertExpectations(t)
}

func TestHandler_Execute_Image(t *testing.T) {
	h, analyzer := newTestHandler(t)
	image := []byte{0x89, 'P', 'N', 'G'}
	analyzer.On("AnalyzeDocument", mock.Anything, models.ImageDocument(image, "scan.png", "", models.SourceCamera), "").
		Return(analysis("English"), nil).Once()

	output, err := h.Execute(context.Background(), &Input{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Filename:    "scan.png",
		Source:      models.SourceCamera,
	})

	require.NoError(t, err)
	assert.NotNil(t, output.MedicationNames)
	assert.Empty(t, output.MedicationNames)
	analyzer.AssertExpectations(t)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    *Input
		outcome  *models.Outcome
		err      error
		wantCode errors.ErrorCode
	}{
		{
			name:     "unsupported language",
			input:    &Input{Text: "x", Language: "Latin"},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "bad base64",
			input:    &Input{ImageBase64: "not base64!"},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "empty text",
			input:    &Input{Text: " "},
			outcome:  models.SentinelOutcome(models.EmptyTextSentinel()),
			wantCode: errors.ErrCodeEmptyText,
		},
		{
			name:     "not medical",
			input:    &Input{Text: "grocery list"},
			outcome:  models.SentinelOutcome(models.NotMedicalSentinel("This is a grocery list.")),
			wantCode: errors.ErrCodeNotMedical,
		},
		{
			name:     "provider failure",
			input:    &Input{Text: "Warfarin"},
			err:      errors.NewProviderError("gemini", 503, "unavailable", nil),
			wantCode: errors.ErrCodeProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, analyzer := newTestHandler(t)
			analyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, mock.Anything).Return(tt.outcome, tt.err).Maybe()

			output, err := h.Execute(context.Background(), tt.input)

			assert.Nil(t, output)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestHandler_Execute_NotMedicalKeepsMessage(t *testing.T) {
	h, analyzer := newTestHandler(t)
	analyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, mock.Anything).
		Return(models.SentinelOutcome(models.NotMedicalSentinel("This is a recipe.")), nil).Once()

	_, err := h.Execute(context.Background(), &Input{Text: "flour, eggs"})

	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, "This is a recipe.", stdErr.Message)
	assert.True(t, errors.IsBusinessError(stdErr.Code))
}
