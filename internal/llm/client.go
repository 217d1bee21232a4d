package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON sends a JSON payload and returns the raw response body.
// Non-2xx responses become a statusError carrying the status code.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &statusError{status: resp.StatusCode, body: truncateBody(body)}
	}

	return body, nil
}

// override returns the request value when set, the configured default
// otherwise.
func override(requested, configured float64) float64 {
	if requested > 0 {
		return requested
	}
	return configured
}

func overrideInt(requested, configured int) int {
	if requested > 0 {
		return requested
	}
	return configured
}
