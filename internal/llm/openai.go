package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"medlens/internal/common/config"
	"medlens/internal/common/errors"
)

const openAIName = "openai"

// OpenAI is the fallback provider, backed by the chat completions API.
type OpenAI struct {
	cfg    config.ProviderConfig
	client *openai.Client
}

func NewOpenAI(cfg config.ProviderConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: config.GetDuration(cfg.Timeout)}

	return &OpenAI{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (o *OpenAI) Name() string { return openAIName }

func (o *OpenAI) Configured() bool { return o.cfg.APIKey != "" }

func (o *OpenAI) Invoke(ctx context.Context, req Request) (string, error) {
	maxTokens := o.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: float32(o.cfg.Temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", o.classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.NewMalformedResponseError(openAIName, fmt.Errorf("no content returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) classify(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewProviderError(openAIName, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return errors.NewProviderError(openAIName, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return errors.NewProviderError(openAIName, 0, "", err)
}
