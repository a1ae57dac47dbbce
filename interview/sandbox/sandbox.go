// Package sandbox submits candidate code to the external isolated
// executor and enforces the engine's caps around it: code size, language,
// wall clock, and captured-output limits. The executor itself (container
// runtime, network policy) is out of scope; this package only speaks its
// narrow HTTP contract and degrades gracefully when it is unreachable.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Supported submission languages.
const (
	LangPython     = "python"
	LangJavaScript = "javascript"
)

// Sentinel errors for pre-flight validation failures.
var (
	// ErrCodeTooLarge rejects a submission above the size cap.
	ErrCodeTooLarge = errors.New("code submission exceeds size limit")

	// ErrUnsupportedLanguage rejects a submission in a language the
	// executor does not run.
	ErrUnsupportedLanguage = errors.New("unsupported submission language")

	// ErrUnavailable reports that the executor could not be reached.
	// Client.Execute absorbs it into a degraded Result; only Runner
	// implementations return it directly.
	ErrUnavailable = errors.New("sandbox executor unavailable")
)

// Request is one code submission.
type Request struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Result is the outcome of one execution. A degraded result (executor
// unreachable) carries ExitCode -1, a synthetic Stderr, and Unavailable
// set; a timeout carries TimedOut and a non-zero ExitCode.
type Result struct {
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exit_code"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	TimedOut    bool   `json:"timed_out,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// Runner executes code somewhere. Implementations: HTTPRunner against the
// real executor, Mock for tests.
type Runner interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ClientConfig carries the caps the client enforces in addition to
// whatever the executor enforces itself.
type ClientConfig struct {
	// Timeout bounds one execution, wall clock. Default 30s.
	Timeout time.Duration

	// CodeMaxBytes caps submission size. Default 100000.
	CodeMaxBytes int

	// OutputTruncateBytes caps captured stdout and stderr, each.
	// Default 65536.
	OutputTruncateBytes int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.CodeMaxBytes == 0 {
		c.CodeMaxBytes = 100_000
	}
	if c.OutputTruncateBytes == 0 {
		c.OutputTruncateBytes = 65_536
	}
	return c
}

// Client wraps a Runner with validation, the wall-clock bound, output
// truncation, and unavailability degradation. Safe for concurrent use
// when the Runner is.
type Client struct {
	runner   Runner
	cfg      ClientConfig
	observer func(outcome string, elapsed time.Duration)
}

// NewClient wraps a runner with the engine's caps.
func NewClient(runner Runner, cfg ClientConfig) *Client {
	return &Client{runner: runner, cfg: cfg.withDefaults()}
}

// SetObserver installs a hook receiving every execution's outcome bucket
// ("ok", "failed", "timeout", "unavailable", "rejected", "error") and
// duration. Install before the client serves traffic; the hook must be
// safe for concurrent invocation.
func (c *Client) SetObserver(fn func(outcome string, elapsed time.Duration)) {
	c.observer = fn
}

// Execute validates and runs one submission.
//
// Validation failures (size, language) return an error and never reach
// the executor. An unreachable executor returns a degraded Result with a
// nil error so code review can proceed and acknowledge the failure. A
// wall-clock expiry returns a normal Result with TimedOut set.
func (c *Client) Execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := c.execute(ctx, req)
	if c.observer != nil {
		c.observer(execOutcome(res, err), time.Since(start))
	}
	return res, err
}

func (c *Client) execute(ctx context.Context, req Request) (Result, error) {
	if len(req.Code) > c.cfg.CodeMaxBytes {
		return Result{}, fmt.Errorf("%w: %d bytes, limit %d", ErrCodeTooLarge, len(req.Code), c.cfg.CodeMaxBytes)
	}
	if req.Language != LangPython && req.Language != LangJavaScript {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.Language)
	}

	execCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := c.runner.Execute(execCtx, req)
	switch {
	case err == nil:
		// fall through to truncation
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return Result{
			Stderr:    fmt.Sprintf("execution exceeded %v wall clock", c.cfg.Timeout),
			ExitCode:  124,
			ElapsedMS: time.Since(start).Milliseconds(),
			TimedOut:  true,
		}, nil
	case errors.Is(err, ErrUnavailable):
		return Result{
			Stderr:      fmt.Sprintf("sandbox unavailable: %v", err),
			ExitCode:    -1,
			ElapsedMS:   time.Since(start).Milliseconds(),
			Unavailable: true,
		}, nil
	default:
		return Result{}, err
	}

	if len(res.Stdout) > c.cfg.OutputTruncateBytes {
		res.Stdout = res.Stdout[:c.cfg.OutputTruncateBytes]
		res.Truncated = true
	}
	if len(res.Stderr) > c.cfg.OutputTruncateBytes {
		res.Stderr = res.Stderr[:c.cfg.OutputTruncateBytes]
		res.Truncated = true
	}
	return res, nil
}

// execOutcome buckets a finished execution for instrumentation labels.
func execOutcome(res Result, err error) string {
	switch {
	case err != nil && (errors.Is(err, ErrCodeTooLarge) || errors.Is(err, ErrUnsupportedLanguage)):
		return "rejected"
	case err != nil:
		return "error"
	case res.Unavailable:
		return "unavailable"
	case res.TimedOut:
		return "timeout"
	case res.ExitCode != 0:
		return "failed"
	default:
		return "ok"
	}
}
