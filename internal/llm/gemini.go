package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"medlens/internal/common/config"
	"medlens/internal/common/errors"
	commonhttp "medlens/internal/common/http"
)

const geminiName = "gemini"

// Gemini calls the generateContent REST endpoint. Request.System is not sent;
// the analysis prompt already carries the role text.
type Gemini struct {
	cfg    config.ProviderConfig
	client *commonhttp.Client
}

func NewGemini(cfg config.ProviderConfig) *Gemini {
	return &Gemini{
		cfg:    cfg,
		client: commonhttp.NewClient(config.GetDuration(cfg.Timeout)),
	}
}

func (g *Gemini) Name() string { return geminiName }

func (g *Gemini) Configured() bool { return g.cfg.APIKey != "" }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Invoke(ctx context.Context, req Request) (string, error) {
	maxTokens := g.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.cfg.Temperature,
			MaxOutputTokens: maxTokens,
		},
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.Model, url.QueryEscape(g.cfg.APIKey))

	resp, err := g.client.PostJSON(ctx, endpoint, payload, nil)
	if err != nil {
		return "", errors.NewProviderError(geminiName, 0, "", err)
	}
	if !resp.OK() {
		return "", errors.NewProviderError(geminiName, resp.StatusCode, string(resp.Body), nil)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", errors.NewMalformedResponseError(geminiName, fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 || decoded.Candidates[0].Content.Parts[0].Text == "" {
		return "", errors.NewMalformedResponseError(geminiName, fmt.Errorf("no content returned"))
	}

	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
