// Package pipeline runs a medical document through text extraction, LLM
// analysis and the drug interaction check, and assembles the result.
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/common/metrics"
	"medlens/internal/common/observability"
	"medlens/internal/llm"
	"medlens/internal/models"
)

// TextExtractor recognizes the text of a document image.
type TextExtractor interface {
	Extract(ctx context.Context, image []byte, filename string) (models.OcrResult, error)
}

// Analyzer runs the structured-extraction prompt.
type Analyzer interface {
	Infer(ctx context.Context, prompt string) (*llm.Inference, error)
}

// InteractionChecker produces warnings for a medication list. It never fails.
type InteractionChecker interface {
	Check(ctx context.Context, names []string) []models.InteractionWarning
}

// Pipeline is stateless between calls and safe for concurrent use. Stages
// within one call run strictly in order, and no stage imposes a timeout of
// its own.
type Pipeline struct {
	ocr      TextExtractor
	analyzer Analyzer
	checker  InteractionChecker
	logger   logger.Logger
	obs      *observability.Observability
}

func New(ocr TextExtractor, analyzer Analyzer, checker InteractionChecker, log logger.Logger, obs *observability.Observability) *Pipeline {
	return &Pipeline{
		ocr:      ocr,
		analyzer: analyzer,
		checker:  checker,
		logger:   log,
		obs:      obs,
	}
}

// Analyze is the full pipeline. The outcome holds a result with its
// interaction warnings, or a sentinel for empty and non-medical documents.
// Any error means nothing partial was produced.
func (p *Pipeline) Analyze(ctx context.Context, input models.DocumentInput, language string) (*models.Outcome, error) {
	start := time.Now()
	ctx, span := p.obs.StartSpan(ctx, "pipeline.analyze",
		attribute.String("language", normalizeLanguage(language)),
		attribute.Bool("image", input.IsImage()),
		attribute.String("source", string(input.Source)))
	defer span.End()

	outcome, err := p.analyze(ctx, input, language, true)
	p.finish(ctx, span, start, outcome, err)
	return outcome, err
}

// AnalyzeDocument stops after LLM analysis. The outcome carries no
// interaction warnings; callers run the checker separately.
func (p *Pipeline) AnalyzeDocument(ctx context.Context, input models.DocumentInput, language string) (*models.Outcome, error) {
	start := time.Now()
	ctx, span := p.obs.StartSpan(ctx, "pipeline.analyze_document",
		attribute.String("language", normalizeLanguage(language)),
		attribute.Bool("image", input.IsImage()))
	defer span.End()

	outcome, err := p.analyze(ctx, input, language, false)
	p.finish(ctx, span, start, outcome, err)
	return outcome, err
}

// Reanalyze reruns everything after text extraction on already known text,
// typically to switch the output language. It never runs OCR.
func (p *Pipeline) Reanalyze(ctx context.Context, rawText, language string) (*models.Outcome, error) {
	return p.Analyze(ctx, models.TextDocument(rawText, models.SourcePaste), language)
}

// CheckInteractions runs only the interaction stage.
func (p *Pipeline) CheckInteractions(ctx context.Context, names []string) []models.InteractionWarning {
	if len(names) == 0 {
		return []models.InteractionWarning{}
	}
	ctx, span := p.obs.StartSpan(ctx, "pipeline.interactions", attribute.Int("medications", len(names)))
	defer span.End()

	stageStart := time.Now()
	warnings := p.checker.Check(ctx, names)
	metrics.StageDuration.WithLabelValues("interactions").Observe(time.Since(stageStart).Seconds())
	return warnings
}

func (p *Pipeline) analyze(ctx context.Context, input models.DocumentInput, language string, withInteractions bool) (*models.Outcome, error) {
	language = normalizeLanguage(language)

	rawText := input.Text
	var confidence *float64

	if input.IsImage() {
		stageStart := time.Now()
		stageCtx, span := p.obs.StartSpan(ctx, "pipeline.ocr", attribute.Int("bytes", len(input.Image)))
		ocrResult, err := p.ocr.Extract(stageCtx, input.Image, input.Filename)
		span.End()
		metrics.StageDuration.WithLabelValues("ocr").Observe(time.Since(stageStart).Seconds())
		if err != nil {
			return nil, err
		}
		rawText = ocrResult.Text
		confidence = ocrResult.Confidence
	}

	if strings.TrimSpace(rawText) == "" {
		p.logger.Info("Document has no text", map[string]interface{}{"image": input.IsImage()})
		return models.SentinelOutcome(models.EmptyTextSentinel()), nil
	}

	stageStart := time.Now()
	stageCtx, span := p.obs.StartSpan(ctx, "pipeline.llm", attribute.Int("textLength", len(rawText)))
	inference, err := p.analyzer.Infer(stageCtx, llm.BuildPrompt(rawText, language))
	span.End()
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}
	if inference.Sentinel != nil {
		return models.SentinelOutcome(inference.Sentinel), nil
	}
	if inference.Fields == nil {
		return nil, errors.NewMalformedResponseError("unknown", nil)
	}

	result := assemble(*inference.Fields, rawText, confidence, language)

	if !withInteractions {
		return &models.Outcome{Result: result}, nil
	}

	warnings := p.CheckInteractions(ctx, ExtractMedicationNames(result))
	return models.ResultOutcome(result, warnings), nil
}

func assemble(fields models.AnalysisFields, rawText string, confidence *float64, language string) *models.AnalysisResult {
	if language == llm.DefaultLanguage || fields.Disclaimer == "" {
		fields.Disclaimer = models.Disclaimer
	}
	fields.MedicationSchedule = fillSchedule(fields.MedicationSchedule)
	return &models.AnalysisResult{
		AnalysisFields: fields,
		RawText:        rawText,
		OcrConfidence:  confidence,
		OcrWarning:     ConfidenceWarning(confidence),
		Language:       language,
	}
}

// fillSchedule turns slots the model left out into empty lists.
func fillSchedule(s models.MedicationSchedule) models.MedicationSchedule {
	for _, slot := range []*[]string{&s.Morning, &s.Afternoon, &s.Evening, &s.Bedtime} {
		if *slot == nil {
			*slot = []string{}
		}
	}
	return s
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, start time.Time, outcome *models.Outcome, err error) {
	label := outcomeLabel(outcome, err)
	metrics.AnalysesTotal.WithLabelValues(label).Inc()
	p.obs.RecordAnalysis(ctx, time.Since(start), label)
	span.SetAttributes(attribute.String("outcome", label))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		p.logger.Error("Document analysis failed", map[string]interface{}{
			"errorCode": string(errors.CodeOf(err)),
			"error":     err,
			"duration":  time.Since(start).String(),
		})
		return
	}

	fields := map[string]interface{}{
		"outcome":  label,
		"duration": time.Since(start).String(),
	}
	if outcome.Result != nil {
		fields["medications"] = len(outcome.Result.Medications)
		fields["interactions"] = len(outcome.Interactions)
	}
	p.logger.Info("Document analyzed", fields)
}

func outcomeLabel(outcome *models.Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case outcome.Sentinel != nil:
		return string(outcome.Sentinel.Error)
	default:
		return "result"
	}
}

func normalizeLanguage(language string) string {
	if strings.TrimSpace(language) == "" {
		return llm.DefaultLanguage
	}
	return language
}
