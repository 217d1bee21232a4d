package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "callpulse/internal/errors"
)

// anthropicVersion is the API version header required on every
// messages request.
const anthropicVersion = "2023-06-01"

// anthropicClient speaks the Anthropic messages API. The system prompt
// travels as a top-level field, not as a message.
type anthropicClient struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *anthropicClient) Name() string { return ProviderAnthropic }

func (c *anthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := anthropicRequest{
		Model:       c.model,
		MaxTokens:   overrideInt(req.MaxTokens, c.maxTokens),
		Temperature: override(req.Temperature, c.temperature),
		System:      req.System,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	}

	header := http.Header{}
	header.Set("x-api-key", c.apiKey)
	header.Set("anthropic-version", anthropicVersion)

	body, err := postJSON(ctx, c.http, c.baseURL+"/v1/messages", header, payload)
	if err != nil {
		return "", err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode message: %v", apperrors.ErrLLMResponseFormat, err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("%w: message contains no content blocks", apperrors.ErrLLMResponseFormat)
	}

	return parsed.Content[0].Text, nil
}
