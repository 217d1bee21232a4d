// Package llm talks to language-model providers and turns analysis
// results into narrative insight text. Providers share one interface;
// retry, rate limiting and timeouts are layered on top so callers see
// a single Generate call regardless of backend.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"callpulse/internal/config"
	apperrors "callpulse/internal/errors"
)

// Supported provider names. These match the values accepted by the
// llm.provider configuration key.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// Request is a single generation request. Temperature and MaxTokens
// override the configured defaults when set above zero.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider generates text from a prompt. Implementations must be safe
// for concurrent use.
type Provider interface {
	// Generate returns the model's text completion for the request.
	Generate(ctx context.Context, req Request) (string, error)

	// Name identifies the backend ("openai", "mock", ...).
	Name() string
}

// NewProvider builds the configured provider wrapped with retry and
// rate limiting. Providers that require an API key fail here, at
// construction, rather than on the first request.
func NewProvider(logger *slog.Logger, cfg config.LLMConfig) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	var inner Provider
	switch cfg.Provider {
	case ProviderOpenAI:
		key := cfg.ResolveAPIKey()
		if key == "" {
			return nil, apperrors.NewConfigError("openai api key not configured", nil)
		}
		inner = &openAIClient{
			http:        httpClient,
			baseURL:     strings.TrimSuffix(cfg.ResolveBaseURL(), "/"),
			apiKey:      key,
			model:       cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		}
	case ProviderAnthropic:
		key := cfg.ResolveAPIKey()
		if key == "" {
			return nil, apperrors.NewConfigError("anthropic api key not configured", nil)
		}
		inner = &anthropicClient{
			http:        httpClient,
			baseURL:     strings.TrimSuffix(cfg.ResolveBaseURL(), "/"),
			apiKey:      key,
			model:       cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		}
	case ProviderOllama:
		inner = &ollamaClient{
			http:        httpClient,
			baseURL:     strings.TrimSuffix(cfg.ResolveBaseURL(), "/"),
			model:       cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		}
	case ProviderMock:
		inner = &Mock{}
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unsupported llm provider %q", cfg.Provider), nil)
	}

	logger.Info("llm provider initialized",
		slog.String("provider", cfg.Provider),
		slog.String("model", cfg.Model),
	)

	return withRetry(logger, inner, cfg), nil
}

// statusError is a non-2xx provider response. The retry layer uses the
// status code to decide whether another attempt can help.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm api returned status %d: %s", e.status, e.body)
}

// truncateBody shortens a response body for error messages.
func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
