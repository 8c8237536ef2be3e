package llm

import (
	"context"
	"sync"
)

// MockProvider returns a scripted reply and records every request.
type MockProvider struct {
	Reply string
	Err   error

	mu       sync.Mutex
	requests []CompletionRequest
}

// Name returns "mock".
func (m *MockProvider) Name() string {
	return "mock"
}

// Complete records req and returns Reply or Err.
func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return &CompletionResponse{Content: m.Reply, Model: req.Model, FinishReason: "stop"}, nil
}

// Requests returns a copy of the recorded requests.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}
