package checkinteractions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/common/metrics"
	"medlens/internal/common/validation"
	"medlens/internal/models"
)

const TaskType = "check-interactions"

var schema = validation.MustCompile(inputSchema)

// Checker produces warnings for a medication list. Lookup failures are
// absorbed, so it has no error return.
type Checker interface {
	CheckInteractions(ctx context.Context, names []string) []models.InteractionWarning
}

type Handler struct {
	config       *Config
	checker      Checker
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, checker Checker, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		checker:      checker,
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

	input, err := h.parseInput(job)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output := h.Execute(ctx, input)

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"jobKey": job.Key, "error": err})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"jobKey": job.Key, "error": err})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.logger.Info("interactions checked", map[string]interface{}{
		"jobKey":       job.Key,
		"medications":  len(input.MedicationNames),
		"interactions": output.InteractionCount,
	})
}

// Execute drops blank names and checks the rest in order.
func (h *Handler) Execute(ctx context.Context, input *Input) *Output {
	names := make([]string, 0, len(input.MedicationNames))
	for _, name := range input.MedicationNames {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}

	warnings := []models.InteractionWarning{}
	if len(names) > 0 {
		warnings = h.checker.CheckInteractions(ctx, names)
	}
	return &Output{
		Interactions:     warnings,
		InteractionCount: len(warnings),
	}
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
