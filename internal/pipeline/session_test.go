package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medlens/internal/common/logger"
	"medlens/internal/models"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Analyze(ctx context.Context, input models.DocumentInput, language string) (*models.Outcome, error) {
	args := m.Called(ctx, input, language)
	outcome, _ := args.Get(0).(*models.Outcome)
	return outcome, args.Error(1)
}

func (m *MockRunner) Reanalyze(ctx context.Context, rawText, language string) (*models.Outcome, error) {
	args := m.Called(ctx, rawText, language)
	outcome, _ := args.Get(0).(*models.Outcome)
	return outcome, args.Error(1)
}

func resultIn(language string) *models.Outcome {
	return models.ResultOutcome(&models.AnalysisResult{
		AnalysisFields: models.AnalysisFields{
			Summary: models.Summary{Simple: "simple " + language, Standard: "standard " + language, Detailed: ""},
		},
		RawText:  DemoText,
		Language: language,
	}, nil)
}

func startedSession(t *testing.T, runner *MockRunner) *Session {
	t.Helper()
	runner.On("Analyze", mock.Anything, mock.Anything, "English").Return(resultIn("English"), nil).Once()
	s := NewSession(runner, logger.NewTestLogger(t))
	_, err := s.Start(context.Background(), DemoDocument(), "English")
	require.NoError(t, err)
	return s
}

func TestSession_SetLanguageReanalyzes(t *testing.T) {
	runner := new(MockRunner)
	s := startedSession(t, runner)
	runner.On("Reanalyze", mock.Anything, DemoText, "Spanish").Return(resultIn("Spanish"), nil).Once()

	outcome, updated, err := s.SetLanguage(context.Background(), "Spanish")

	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "Spanish", outcome.Result.Language)
	assert.Equal(t, "Spanish", s.Language())
	runner.AssertExpectations(t)
}

func TestSession_SameLanguageIsNoop(t *testing.T) {
	runner := new(MockRunner)
	s := startedSession(t, runner)

	outcome, updated, err := s.SetLanguage(context.Background(), "English")

	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "English", outcome.Result.Language)
	runner.AssertNotCalled(t, "Reanalyze", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_FailedReanalysisKeepsPrevious(t *testing.T) {
	tests := []struct {
		name    string
		outcome *models.Outcome
		err     error
	}{
		{name: "error", err: assert.AnError},
		{name: "sentinel", outcome: models.SentinelOutcome(models.NotMedicalSentinel(""))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(MockRunner)
			s := startedSession(t, runner)
			runner.On("Reanalyze", mock.Anything, DemoText, "Korean").Return(tt.outcome, tt.err).Once()

			outcome, updated, err := s.SetLanguage(context.Background(), "Korean")

			assert.Equal(t, tt.err, err)
			assert.False(t, updated)
			require.NotNil(t, outcome.Result)
			assert.Equal(t, "English", outcome.Result.Language)
			assert.Equal(t, "English", s.Outcome().Result.Language)
			assert.Equal(t, "Korean", s.Language())
		})
	}
}

func TestSession_SetLanguageWithoutResult(t *testing.T) {
	runner := new(MockRunner)
	s := NewSession(runner, logger.NewNoOpLogger())

	outcome, updated, err := s.SetLanguage(context.Background(), "French")

	require.NoError(t, err)
	assert.False(t, updated)
	assert.Nil(t, outcome)
	runner.AssertNotCalled(t, "Reanalyze", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_ReadingLevel(t *testing.T) {
	runner := new(MockRunner)
	s := startedSession(t, runner)

	assert.Equal(t, "simple English", s.Summary())

	s.SetReadingLevel(models.ReadingLevelStandard)
	assert.Equal(t, "standard English", s.Summary())

	s.SetReadingLevel(models.ReadingLevelDetailed)
	assert.Equal(t, "simple English", s.Summary(), "empty level falls back to simple")

	s.SetReadingLevel("expert")
	assert.Equal(t, "simple English", s.Summary())
	runner.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestSession_StaleCompletionDiscarded(t *testing.T) {
	runner := new(MockRunner)
	s := NewSession(runner, logger.NewNoOpLogger())

	first := models.TextDocument("first", models.SourcePaste)
	second := models.TextDocument("second", models.SourcePaste)

	runner.On("Analyze", mock.Anything, first, "English").
		Run(func(mock.Arguments) {
			// A newer call starts while this one is in flight.
			runner.On("Analyze", mock.Anything, second, "English").Return(resultIn("second"), nil).Once()
			_, err := s.Start(context.Background(), second, "English")
			require.NoError(t, err)
		}).
		Return(resultIn("first"), nil).Once()

	_, err := s.Start(context.Background(), first, "English")

	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, "second", s.Outcome().Result.Language)
}

func TestRestoreSession(t *testing.T) {
	s := RestoreSession(new(MockRunner), logger.NewNoOpLogger(), resultIn("Vietnamese"))

	assert.Equal(t, "Vietnamese", s.Language())
	assert.Equal(t, "simple Vietnamese", s.Summary())
}
