// Package model adapts language-model providers to the structured-output
// contract the interview engine needs: every call declares a JSON Schema,
// responses are validated against it, schema failures and timeouts are
// retried a bounded number of times, and rate limiting backs off with
// jitter. Providers implement the one-method Provider interface; OpenAI,
// Anthropic, and Gemini adapters live alongside a scripted mock.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Sentinel errors surfaced by Client.Call.
var (
	// ErrTimeout reports that every attempt ran out of its per-attempt
	// budget.
	ErrTimeout = errors.New("model call timed out")

	// ErrSchema reports that every attempt produced output failing the
	// request's schema.
	ErrSchema = errors.New("model output failed schema validation")

	// ErrRateLimited reports that backoff attempts were exhausted while
	// the provider kept returning pressure signals.
	ErrRateLimited = errors.New("model provider rate limited")
)

// Mode selects the sampling behavior of a call. It influences
// temperature, never correctness: both modes validate against the schema.
type Mode int

// Call modes.
const (
	// Deterministic minimizes sampling variance. Used for intent
	// detection and routing decisions.
	Deterministic Mode = iota

	// Creative allows variance. Used for interviewer speech.
	Creative
)

// temperature maps a mode onto the provider temperature.
func (m Mode) temperature() float64 {
	if m == Creative {
		return 0.8
	}
	return 0.0
}

// Usage is the token accounting of one provider call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is one language-model backend. Generate sends a single
// system + user exchange and returns the raw text completion.
// Implementations must honor context cancellation promptly; the client
// relies on it for per-attempt timeouts.
type Provider interface {
	Name() string
	Generate(ctx context.Context, system, user string, temperature float64) (string, Usage, error)
}

// Request is one structured-output call.
type Request struct {
	System string
	User   string
	Schema *Schema
	Mode   Mode
}

// CallStats summarizes one finished Call for instrumentation: which
// provider served it, how it ended, how many attempts it consumed, and
// how long it took end to end.
type CallStats struct {
	Provider string
	Outcome  string
	Attempts int
	Elapsed  time.Duration
}

// Client wraps a Provider with the engine's call contract: per-attempt
// timeout, schema validation with retries, and rate-limit backoff. A
// Client is safe for concurrent use; calls are independent and
// independently cancellable.
type Client struct {
	provider       Provider
	attemptTimeout time.Duration
	maxAttempts    int
	backoffBase    time.Duration
	backoffTries   int
	limiter        *rate.Limiter
	usage          *UsageTracker
	observer       func(CallStats)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAttemptTimeout overrides the per-attempt deadline (default 15s).
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.attemptTimeout = d }
}

// WithRateLimit installs a shared limiter in front of every call.
func WithRateLimit(l *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithBackoffBase overrides the base rate-limit backoff delay
// (default 1s, doubling per retry). Mostly for tests.
func WithBackoffBase(d time.Duration) ClientOption {
	return func(c *Client) { c.backoffBase = d }
}

// WithUsageTracker attaches a tracker accumulating token usage across
// calls.
func WithUsageTracker(t *UsageTracker) ClientOption {
	return func(c *Client) { c.usage = t }
}

// SetCallObserver installs a hook receiving a CallStats per finished
// Call. Install before the client serves traffic; the hook must be safe
// for concurrent invocation.
func (c *Client) SetCallObserver(fn func(CallStats)) {
	c.observer = fn
}

// NewClient wraps a provider with the structured-output contract.
func NewClient(p Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:       p,
		attemptTimeout: 15 * time.Second,
		maxAttempts:    3,
		backoffBase:    time.Second,
		backoffTries:   3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs one structured-output invocation. The response text is
// cleaned of code fences, narrowed to the outermost JSON object, and
// validated against the request schema. Schema failures and per-attempt
// timeouts consume attempts (three in total); rate-limit pressure backs
// off 1s, 2s, 4s with jitter before counting. The returned bytes are the
// validated JSON object.
func (c *Client) Call(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Schema == nil {
		return nil, errors.New("model: request needs a schema")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	raw, attempts, err := c.attempt(ctx, req)
	if c.observer != nil {
		c.observer(CallStats{
			Provider: c.provider.Name(),
			Outcome:  callOutcome(err),
			Attempts: attempts,
			Elapsed:  time.Since(start),
		})
	}
	return raw, err
}

func (c *Client) attempt(ctx context.Context, req Request) (json.RawMessage, int, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		raw, err := c.generateOnce(ctx, req)
		if err == nil {
			return raw, attempt + 1, nil
		}
		if ctx.Err() != nil {
			// Caller cancellation wins over retry bookkeeping.
			return nil, attempt + 1, classifyContextErr(ctx.Err())
		}
		lastErr = err
		if errors.Is(err, ErrRateLimited) {
			return nil, attempt + 1, err
		}
		if !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrSchema) {
			return nil, attempt + 1, fmt.Errorf("model call: %w", err)
		}
	}
	return nil, c.maxAttempts, lastErr
}

// callOutcome buckets a finished call for instrumentation labels.
func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSchema):
		return "schema_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// generateOnce runs a single attempt end to end, including the
// rate-limit backoff loop, under the per-attempt deadline.
func (c *Client) generateOnce(ctx context.Context, req Request) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	text, usage, err := c.generateWithBackoff(attemptCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrTimeout
		}
		return nil, err
	}
	if c.usage != nil {
		c.usage.Record(c.provider.Name(), usage)
	}

	raw, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := req.Schema.ValidateBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return raw, nil
}

// generateWithBackoff retries rate-limited generations with exponential
// backoff and jitter: base, 2*base, 4*base.
func (c *Client) generateWithBackoff(ctx context.Context, req Request) (string, Usage, error) {
	var lastErr error
	for try := 0; try < c.backoffTries; try++ {
		text, usage, err := c.provider.Generate(ctx, req.System, req.User, req.Mode.temperature())
		if err == nil {
			return text, usage, nil
		}
		lastErr = err
		if !isRateLimit(err) {
			return "", Usage{}, err
		}
		delay := c.backoffBase*(1<<try) + time.Duration(rand.Int63n(int64(c.backoffBase))) // #nosec G404 -- retry jitter
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", Usage{}, ctx.Err()
		}
	}
	return "", Usage{}, fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
}

func classifyContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// isRateLimit classifies provider pressure signals. Providers surface
// these in SDK-specific types, so the check is on the message.
func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota")
}

// extractJSONObject strips markdown fences and narrows the text to its
// outermost JSON object. Models wrap structured output in prose often
// enough that this is part of the contract, not a workaround.
func extractJSONObject(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no JSON object in response")
	}
	raw := json.RawMessage(cleaned[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("malformed JSON object in response")
	}
	return raw, nil
}
