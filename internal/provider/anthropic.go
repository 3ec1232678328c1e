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
	TypeAnthropic = "anthropic"

	defaultAnthropicBaseURL    = "https://api.anthropic.com"
	defaultAnthropicModel      = "claude-3-5-sonnet-20241022"
	defaultAnthropicAPIVersion = "2023-06-01"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Anthropic is a Completer for the Anthropic Messages API.
type Anthropic struct {
	client *resty.Client
	model  string
}

// NewAnthropic creates an Anthropic back end. client is expected to carry no transport retries.
func NewAnthropic(client *resty.Client, baseURL, apiKey, model string, opts Options) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	version := opts.APIVersion
	if version == "" {
		version = defaultAnthropicAPIVersion
	}
	client.
		SetBaseURL(strings.TrimRight(orDefault(baseURL, defaultAnthropicBaseURL), "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-Key", apiKey).
		SetHeader("Anthropic-Version", version).
		SetHeaders(opts.Headers)
	return &Anthropic{client: client, model: orDefault(model, defaultAnthropicModel)}, nil
}

func (a *Anthropic) Name() string { return TypeAnthropic }

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	body := anthropicRequest{
		Model:       a.model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}

	resp, err := a.client.R().SetContext(ctx).SetBody(body).Post("/v1/messages")
	if err := classifyResty(ctx, a.Name(), resp, err); err != nil {
		return "", err
	}

	var out anthropicResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", errors.NewProviderError(errors.ProviderMalformedResponse, a.Name(), fmt.Errorf("failed to unmarshal response: %w", err))
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.NewProviderError(errors.ProviderMalformedResponse, a.Name(), fmt.Errorf("empty response (stop reason %q)", out.StopReason))
	}
	return text.String(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
