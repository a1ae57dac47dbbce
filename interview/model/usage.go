package model

import "sync"

// ProviderUsage accumulates token accounting for one provider.
type ProviderUsage struct {
	Calls        int
	InputTokens  int
	OutputTokens int
}

// UsageTracker accumulates per-provider token usage across calls. Safe
// for concurrent use; share one tracker across all clients in a process
// to get a whole-deployment view.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]ProviderUsage
}

// NewUsageTracker returns an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[string]ProviderUsage)}
}

// Record adds one call's usage under the provider name.
func (t *UsageTracker) Record(provider string, u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pu := t.usage[provider]
	pu.Calls++
	pu.InputTokens += u.InputTokens
	pu.OutputTokens += u.OutputTokens
	t.usage[provider] = pu
}

// Snapshot returns a copy of the accumulated usage keyed by provider.
func (t *UsageTracker) Snapshot() map[string]ProviderUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ProviderUsage, len(t.usage))
	for name, pu := range t.usage {
		out[name] = pu
	}
	return out
}

// Total sums usage across providers.
func (t *UsageTracker) Total() ProviderUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total ProviderUsage
	for _, pu := range t.usage {
		total.Calls += pu.Calls
		total.InputTokens += pu.InputTokens
		total.OutputTokens += pu.OutputTokens
	}
	return total
}
