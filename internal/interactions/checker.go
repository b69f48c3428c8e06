package interactions

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"medlens/internal/common/config"
	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/common/metrics"
	"medlens/internal/llm"
	"medlens/internal/models"
)

// NoInteractionsSentence is what the summarizer is told to say when the label
// mentions none of the patient's other medications.
const NoInteractionsSentence = "No specific interactions found with your other medications, but consult your doctor."

const summaryMaxTokens = 200

const summaryPrompt = `Summarize the following drug interaction information for %s in 1-2 simple sentences that a patient can understand. Focus only on interactions relevant to these medications the patient is taking: %s. If none of the listed medications are mentioned in the interaction text, say "%s"

FDA TEXT:
%s

Return ONLY the plain-language summary, no JSON, no formatting.`

// Completer is the slice of the LLM client the summarizer needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Checker turns a medication list into interaction warnings. Per-drug lookup
// and summarization failures are logged and recovered, never returned.
type Checker struct {
	source        LabelSource
	llm           Completer
	logger        logger.Logger
	maxConcurrent int
	promptBudget  int
	fallbackChars int
}

func NewChecker(source LabelSource, completer Completer, cfg config.InteractionsConfig, log logger.Logger) *Checker {
	c := &Checker{
		source:        source,
		llm:           completer,
		logger:        log,
		maxConcurrent: cfg.MaxConcurrentLookups,
		promptBudget:  cfg.PromptCharBudget,
		fallbackChars: cfg.FallbackChars,
	}
	if c.maxConcurrent < 1 {
		c.maxConcurrent = 1
	}
	if c.promptBudget <= 0 {
		c.promptBudget = 1500
	}
	if c.fallbackChars <= 0 {
		c.fallbackChars = 300
	}
	return c
}

// Check returns one warning per drug whose label has interaction text, in
// the order of names. At most maxConcurrent lookups run at once; the default
// of one keeps them strictly sequential.
func (c *Checker) Check(ctx context.Context, names []string) []models.InteractionWarning {
	mapper := iter.Mapper[string, *models.InteractionWarning]{MaxGoroutines: c.maxConcurrent}
	found := mapper.Map(names, func(name *string) *models.InteractionWarning {
		return c.checkOne(ctx, *name, names)
	})

	warnings := make([]models.InteractionWarning, 0, len(found))
	for _, w := range found {
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

func (c *Checker) checkOne(ctx context.Context, drug string, all []string) *models.InteractionWarning {
	text, found, err := c.source.Lookup(ctx, drug)
	if err != nil {
		metrics.InteractionLookupsTotal.WithLabelValues(c.source.Name(), "error").Inc()
		lookupErr := errors.NewInteractionLookupError(drug, err)
		c.logger.Warn("Could not check interactions", map[string]interface{}{
			"drug":   drug,
			"source": c.source.Name(),
			"error":  lookupErr,
		})
		return nil
	}
	if !found {
		metrics.InteractionLookupsTotal.WithLabelValues(c.source.Name(), "no_match").Inc()
		return nil
	}
	metrics.InteractionLookupsTotal.WithLabelValues(c.source.Name(), "found").Inc()

	return &models.InteractionWarning{
		Drug:    drug,
		Details: c.summarize(ctx, drug, text, all),
	}
}

func (c *Checker) summarize(ctx context.Context, drug, raw string, all []string) string {
	prompt := BuildSummaryPrompt(drug, all, Truncate(raw, c.promptBudget))

	summary, err := c.llm.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: summaryMaxTokens})
	if err == nil && summary != "" {
		return summary
	}

	if err == nil {
		err = fmt.Errorf("empty summary")
	}
	c.logger.Warn("Interaction summary unavailable, using label excerpt", map[string]interface{}{
		"drug":  drug,
		"error": errors.NewInteractionSummarizationError(drug, err),
	})
	return Truncate(raw, c.fallbackChars) + "..."
}

// BuildSummaryPrompt asks for a one or two sentence patient-level summary of
// one drug's label text, focused on the other listed medications.
func BuildSummaryPrompt(drug string, medications []string, labelText string) string {
	return fmt.Sprintf(summaryPrompt, drug, strings.Join(medications, ", "), NoInteractionsSentence, labelText)
}

// Truncate keeps the first n characters of s.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
