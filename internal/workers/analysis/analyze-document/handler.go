package analyzedocument

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/common/metrics"
	"medlens/internal/common/validation"
	"medlens/internal/models"
	"medlens/internal/pipeline"
)

const TaskType = "analyze-document"

var schema = validation.MustCompile(inputSchema)

// DocumentAnalyzer runs OCR and LLM analysis without the interaction stage.
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, input models.DocumentInput, language string) (*models.Outcome, error)
}

type Handler struct {
	config       *Config
	analyzer     DocumentAnalyzer
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, analyzer DocumentAnalyzer, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		analyzer:     analyzer,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute analyzes one document. Empty and non-medical documents come back
// as business errors so the process can branch on them.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !pipeline.IsSupportedLanguage(input.Language) {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unsupported language %q", input.Language))
	}

	document, err := toDocument(input)
	if err != nil {
		return nil, err
	}

	outcome, err := h.analyzer.AnalyzeDocument(ctx, document, input.Language)
	if err != nil {
		return nil, err
	}
	if outcome.IsSentinel() {
		if outcome.Sentinel.Error == models.SentinelEmptyText {
			return nil, errors.NewEmptyTextError()
		}
		return nil, errors.NewNotMedicalError(outcome.Sentinel.Message)
	}

	names := pipeline.ExtractMedicationNames(outcome.Result)
	return &Output{
		Analysis:        outcome.Result,
		MedicationNames: names,
		MedicationCount: len(names),
	}, nil
}

func toDocument(input *Input) (models.DocumentInput, error) {
	if input.ImageBase64 == "" {
		source := input.Source
		if source == "" {
			source = models.SourcePaste
		}
		return models.TextDocument(input.Text, source), nil
	}

	image, err := base64.StdEncoding.DecodeString(input.ImageBase64)
	if err != nil {
		return models.DocumentInput{}, errors.NewInvalidInputError(fmt.Sprintf("imageBase64: %v", err))
	}
	source := input.Source
	if source == "" {
		source = models.SourceUpload
	}
	return models.ImageDocument(image, input.Filename, "", source), nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err))
	}

	result, err := schema.ValidateValue(variables)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err))
	}
	return &input, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}

	h.logger.Info("document analyzed", map[string]interface{}{
		"jobKey":      job.Key,
		"medications": output.MedicationCount,
		"language":    output.Analysis.Language,
	})
}
