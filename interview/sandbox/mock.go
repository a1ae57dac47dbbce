package sandbox

import (
	"context"
	"sync"
)

// Mock is a scripted Runner for tests. Results are consumed in order;
// when the script runs out the last one repeats. With no script, Execute
// returns a clean zero-exit result.
type Mock struct {
	mu      sync.Mutex
	results []Result
	errs    []error
	calls   []Request
	next    int
}

// NewMock scripts the given results.
func NewMock(results ...Result) *Mock {
	return &Mock{results: results}
}

// FailWith makes the mock return errors instead of results: position i of
// errs pairs with call i. A nil entry falls back to the scripted result.
func (m *Mock) FailWith(errs ...error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = errs
	return m
}

// Execute records the call and replays the script.
func (m *Mock) Execute(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.next
	m.calls = append(m.calls, req)
	if m.next < max(len(m.results), len(m.errs))-1 {
		m.next++
	}
	if idx < len(m.errs) && m.errs[idx] != nil {
		return Result{}, m.errs[idx]
	}
	if len(m.results) == 0 {
		return Result{}, nil
	}
	if idx >= len(m.results) {
		idx = len(m.results) - 1
	}
	return m.results[idx], nil
}

// Calls returns a copy of every recorded request.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Execute ran.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
