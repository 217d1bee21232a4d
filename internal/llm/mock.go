package llm

import (
	"context"
	"sync"
)

// Mock is an offline provider that records requests and replies with a
// canned response. The zero value is usable; tests set Response or Err
// to steer behavior.
type Mock struct {
	mu       sync.Mutex
	Response string
	Err      error
	Requests []Request
}

func (m *Mock) Name() string { return ProviderMock }

func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return "Mock analysis: the provided metrics were reviewed without contacting a language model.", nil
}

// Calls returns how many requests the mock has served.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request, or a zero Request when
// none were made.
func (m *Mock) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return Request{}
	}
	return m.Requests[len(m.Requests)-1]
}
