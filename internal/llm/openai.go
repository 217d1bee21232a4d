package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "callpulse/internal/errors"
)

// openAIClient speaks the OpenAI chat completions API. Any endpoint
// implementing the same contract (Azure OpenAI, vLLM, LM Studio) works
// through the base_url setting.
type openAIClient struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Name() string { return ProviderOpenAI }

func (c *openAIClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := chatCompletionRequest{
		Model:       c.model,
		Temperature: override(req.Temperature, c.temperature),
		MaxTokens:   overrideInt(req.MaxTokens, c.maxTokens),
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	body, err := postJSON(ctx, c.http, c.baseURL+"/v1/chat/completions", header, payload)
	if err != nil {
		return "", err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", apperrors.ErrLLMResponseFormat, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: completion contains no choices", apperrors.ErrLLMResponseFormat)
	}

	return parsed.Choices[0].Message.Content, nil
}
