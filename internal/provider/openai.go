package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

const (
	TypeOpenAI = "openai"

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o"
)

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

// OpenAI is a Completer for the Chat Completions API and compatible servers.
type OpenAI struct {
	client *resty.Client
	model  string
}

// NewOpenAI creates an OpenAI back end. baseURL may point at any compatible server.
func NewOpenAI(client *resty.Client, baseURL, apiKey, model string, opts Options) (*OpenAI, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	client.
		SetBaseURL(strings.TrimRight(orDefault(baseURL, defaultOpenAIBaseURL), "/")).
		SetHeader("Content-Type", "application/json").
		SetHeaders(opts.Headers)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &OpenAI{client: client, model: orDefault(model, defaultOpenAIModel)}, nil
}

func (o *OpenAI) Name() string { return TypeOpenAI }

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	body := openAIRequest{
		Model:       o.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}

	resp, err := o.client.R().SetContext(ctx).SetBody(body).Post("/chat/completions")
	if err := classifyResty(ctx, o.Name(), resp, err); err != nil {
		return "", err
	}

	var out openAIResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", errors.NewProviderError(errors.ProviderMalformedResponse, o.Name(), fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", errors.NewProviderError(errors.ProviderMalformedResponse, o.Name(), fmt.Errorf("no response choices"))
	}
	return out.Choices[0].Message.Content, nil
}
