package model

import (
	"context"
	"sync"
)

// MockCall captures one Generate invocation for assertions.
type MockCall struct {
	System      string
	User        string
	Temperature float64
}

// MockResponse scripts one Generate result.
type MockResponse struct {
	Text  string
	Usage Usage
	Err   error
}

// MockProvider is a scripted Provider for tests. Responses are consumed
// in order; when the script runs out the last response repeats. With no
// script at all, Generate returns an empty JSON object.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []MockCall
	next      int
}

// NewMockProvider scripts the given responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// Generate records the call and replays the script.
func (m *MockProvider) Generate(ctx context.Context, system, user string, temperature float64) (string, Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", Usage{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{System: system, User: user, Temperature: temperature})
	if len(m.responses) == 0 {
		return "{}", Usage{}, nil
	}
	resp := m.responses[m.next]
	if m.next < len(m.responses)-1 {
		m.next++
	}
	return resp.Text, resp.Usage, resp.Err
}

// Enqueue appends responses to the script.
func (m *MockProvider) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Calls returns a copy of every recorded invocation.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Generate ran.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
