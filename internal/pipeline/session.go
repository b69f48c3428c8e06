package pipeline

import (
	"context"
	stderrors "errors"
	"sync"

	"medlens/internal/common/logger"
	"medlens/internal/models"
)

// ErrSuperseded is returned when a newer call on the same session started
// before this one finished. Its outcome is discarded.
var ErrSuperseded = stderrors.New("SUPERSEDED")

// Runner is the part of Pipeline a session drives.
type Runner interface {
	Analyze(ctx context.Context, input models.DocumentInput, language string) (*models.Outcome, error)
	Reanalyze(ctx context.Context, rawText, language string) (*models.Outcome, error)
}

// Session keeps the latest outcome shown to one viewer, along with the
// selected language and reading level. Only the most recently started call
// may replace the outcome.
type Session struct {
	mu         sync.Mutex
	runner     Runner
	logger     logger.Logger
	outcome    *models.Outcome
	language   string
	level      models.ReadingLevel
	generation uint64
}

func NewSession(runner Runner, log logger.Logger) *Session {
	return &Session{
		runner:   runner,
		logger:   log,
		language: DefaultLanguage(),
		level:    models.ReadingLevelSimple,
	}
}

// RestoreSession seeds a session with a previously stored outcome.
func RestoreSession(runner Runner, log logger.Logger, outcome *models.Outcome) *Session {
	s := NewSession(runner, log)
	s.outcome = outcome
	if outcome != nil && outcome.Result != nil && outcome.Result.Language != "" {
		s.language = outcome.Result.Language
	}
	return s
}

// DefaultLanguage is the language a new session starts in.
func DefaultLanguage() string { return SupportedLanguages[0] }

// Start analyzes a new document. A failure clears the outcome.
func (s *Session) Start(ctx context.Context, input models.DocumentInput, language string) (*models.Outcome, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.language = normalizeLanguage(language)
	s.mu.Unlock()

	outcome, err := s.runner.Analyze(ctx, input, language)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil, ErrSuperseded
	}
	if err != nil {
		s.outcome = nil
		return nil, err
	}
	s.outcome = outcome
	return outcome, nil
}

// SetLanguage reanalyzes the stored text in a new language. Nothing is
// called when the language is unchanged or there is no text yet. When the
// reanalysis fails or yields a sentinel the previous outcome stays current;
// failures are still returned.
func (s *Session) SetLanguage(ctx context.Context, language string) (*models.Outcome, bool, error) {
	language = normalizeLanguage(language)

	s.mu.Lock()
	previous := s.outcome
	changed := language != s.language
	s.language = language
	if !changed || previous == nil || previous.Result == nil || previous.Result.RawText == "" {
		s.mu.Unlock()
		return previous, false, nil
	}
	s.generation++
	gen := s.generation
	rawText := previous.Result.RawText
	s.mu.Unlock()

	outcome, err := s.runner.Reanalyze(ctx, rawText, language)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return s.outcome, false, ErrSuperseded
	}
	if err != nil {
		s.logger.Warn("Translation failed, keeping previous result", map[string]interface{}{
			"language": language,
			"error":    err,
		})
		return s.outcome, false, err
	}
	if outcome.IsSentinel() {
		s.logger.Warn("Translation returned no result, keeping previous result", map[string]interface{}{
			"language": language,
			"sentinel": string(outcome.Sentinel.Error),
		})
		return s.outcome, false, nil
	}
	s.outcome = outcome
	return outcome, true, nil
}

// SetReadingLevel only changes which summary Summary returns.
func (s *Session) SetReadingLevel(level models.ReadingLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

// Summary is the current result's summary at the selected reading level.
func (s *Session) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil || s.outcome.Result == nil {
		return ""
	}
	return s.outcome.Result.Summary.At(s.level)
}

func (s *Session) Outcome() *models.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *Session) ReadingLevel() models.ReadingLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}
