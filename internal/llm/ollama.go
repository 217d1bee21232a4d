package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "callpulse/internal/errors"
)

// ollamaClient speaks the Ollama generate API for locally hosted
// models. No authentication; responses are requested unstreamed.
type ollamaClient struct {
	http        *http.Client
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (c *ollamaClient) Name() string { return ProviderOllama }

func (c *ollamaClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := ollamaRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: ollamaOptions{
			Temperature: override(req.Temperature, c.temperature),
			NumPredict:  overrideInt(req.MaxTokens, c.maxTokens),
		},
	}

	body, err := postJSON(ctx, c.http, c.baseURL+"/api/generate", nil, payload)
	if err != nil {
		return "", err
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode generation: %v", apperrors.ErrLLMResponseFormat, err)
	}
	if parsed.Response == "" {
		return "", fmt.Errorf("%w: generation contains no response text", apperrors.ErrLLMResponseFormat)
	}

	return parsed.Response, nil
}
