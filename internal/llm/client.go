// Package llm turns document text into structured analysis fields through an
// ordered list of completion providers.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"medlens/internal/common/config"
	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/common/metrics"
	"medlens/internal/models"
)

// analysisSystemPrompt is sent to providers with a chat system role.
const analysisSystemPrompt = "You are a medical document translator. Return only valid JSON."

var fencePattern = regexp.MustCompile("```json\\n?|```\\n?")

// Inference is exactly one of Fields or Sentinel.
type Inference struct {
	Fields   *models.AnalysisFields
	Sentinel *models.Sentinel
}

// Client selects the first configured provider in preference order and calls
// it once. It never retries and never falls through to the next provider
// after a failed call.
type Client struct {
	providers []Provider
	logger    logger.Logger
}

func NewClient(log logger.Logger, providers ...Provider) *Client {
	return &Client{providers: providers, logger: log}
}

// NewFromConfig builds the providers named by cfg.Order.
func NewFromConfig(cfg config.LLMConfig, log logger.Logger) *Client {
	providers := make([]Provider, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		switch name {
		case config.ProviderGemini:
			providers = append(providers, NewGemini(cfg.Gemini))
		case config.ProviderOpenAI:
			providers = append(providers, NewOpenAI(cfg.OpenAI))
		}
	}
	return NewClient(log, providers...)
}

// Configured reports whether any provider can currently be called.
func (c *Client) Configured() bool {
	_, err := c.selectProvider()
	return err == nil
}

func (c *Client) selectProvider() (Provider, error) {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		if p.Configured() {
			return p, nil
		}
		names = append(names, p.Name())
	}
	return nil, errors.NewConfigurationError(fmt.Sprintf("no API key found for providers %v", names))
}

func (c *Client) invoke(ctx context.Context, req Request) (string, string, error) {
	provider, err := c.selectProvider()
	if err != nil {
		return "", "", err
	}

	text, err := provider.Invoke(ctx, req)
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(provider.Name(), string(errors.CodeOf(err))).Inc()
		return "", provider.Name(), err
	}
	metrics.LLMCallsTotal.WithLabelValues(provider.Name(), "ok").Inc()
	return text, provider.Name(), nil
}

// Infer runs the analysis prompt and validates the reply against the
// response schema. A reply of the form {"error":"not_medical",...} becomes a
// sentinel.
func (c *Client) Infer(ctx context.Context, prompt string) (*Inference, error) {
	text, provider, err := c.invoke(ctx, Request{Prompt: prompt, System: analysisSystemPrompt})
	if err != nil {
		return nil, err
	}

	clean := []byte(StripFences(text))

	var raw map[string]interface{}
	if err := json.Unmarshal(clean, &raw); err != nil {
		return nil, errors.NewMalformedResponseError(provider, fmt.Errorf("response is not a JSON object: %w", err))
	}

	if code := raw["error"]; !isEmptyReplyValue(code) {
		if code == string(models.SentinelNotMedical) {
			message, _ := raw["message"].(string)
			c.logger.Info("LLM rejected document as non-medical", map[string]interface{}{"provider": provider})
			return &Inference{Sentinel: models.NotMedicalSentinel(message)}, nil
		}
		return nil, errors.NewMalformedResponseError(provider, fmt.Errorf("unexpected error reply: %v", code))
	}

	result, err := responseSchema.ValidateBytes(clean)
	if err != nil {
		return nil, errors.NewMalformedResponseError(provider, err)
	}
	if !result.Valid {
		return nil, errors.NewMalformedResponseError(provider,
			fmt.Errorf("response violates schema: %s", strings.Join(result.GetErrorMessages(), "; ")))
	}

	var fields models.AnalysisFields
	if err := json.Unmarshal(clean, &fields); err != nil {
		return nil, errors.NewMalformedResponseError(provider, err)
	}

	c.logger.Debug("LLM analysis parsed", map[string]interface{}{
		"provider":    provider,
		"medications": len(fields.Medications),
		"diagnoses":   len(fields.Diagnoses),
	})

	return &Inference{Fields: &fields}, nil
}

// isEmptyReplyValue reports whether an "error" field carries nothing. Models
// often emit "error": null beside a normal analysis.
func isEmptyReplyValue(v interface{}) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	}
	return false
}

// Complete returns the trimmed plain-text reply for req.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	text, _, err := c.invoke(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// StripFences removes markdown code-fence markers anywhere in text.
func StripFences(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}
