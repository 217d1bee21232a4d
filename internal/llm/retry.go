package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"callpulse/internal/config"
	apperrors "callpulse/internal/errors"
)

// maxRetryElapsed bounds the total time spent retrying one request.
const maxRetryElapsed = 2 * time.Minute

// retryingProvider wraps a provider with rate limiting, per-attempt
// timeouts and exponential backoff. Responses with a 4xx status other
// than 429 are not retried; neither are malformed-response errors.
type retryingProvider struct {
	inner           Provider
	logger          *slog.Logger
	limiter         *rate.Limiter
	timeout         time.Duration
	maxRetries      uint64
	initialInterval time.Duration
}

func withRetry(logger *slog.Logger, inner Provider, cfg config.LLMConfig) Provider {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
	}
	return &retryingProvider{
		inner:           inner,
		logger:          logger,
		limiter:         limiter,
		timeout:         cfg.Timeout,
		maxRetries:      uint64(cfg.MaxRetries),
		initialInterval: 500 * time.Millisecond,
	}
}

func (p *retryingProvider) Name() string { return p.inner.Name() }

func (p *retryingProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	attempts := 0
	var out string

	op := func() error {
		attempts++

		callCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		text, err := p.inner.Generate(callCtx, req)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			p.logger.WarnContext(ctx, "llm request failed, will retry",
				slog.String("provider", p.inner.Name()),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()),
			)
			return err
		}

		out = text
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxRetryElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, apperrors.ErrLLMResponseFormat) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s request failed after %d attempts: %v",
			apperrors.ErrLLMUnavailable, p.inner.Name(), attempts, err)
	}

	p.logger.DebugContext(ctx, "llm request complete",
		slog.String("provider", p.inner.Name()),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	)

	return out, nil
}

// retryable reports whether another attempt could succeed. Client
// errors (4xx except 429) and malformed responses are final; network
// failures, timeouts, 429 and 5xx are worth retrying.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= http.StatusInternalServerError
	}
	return !errors.Is(err, apperrors.ErrLLMResponseFormat)
}
