package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPRunner talks to the external executor over its JSON contract:
// POST {base}/execute with {code, language}, response
// {stdout, stderr, exit_code, elapsed_ms, timed_out}. Transport failures
// and non-2xx statuses wrap ErrUnavailable so the Client can degrade.
type HTTPRunner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRunner builds a runner against the executor at baseURL. A nil
// httpClient uses http.DefaultClient; timeouts come from the caller's
// context, not the transport.
func NewHTTPRunner(baseURL string, httpClient *http.Client) *HTTPRunner {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRunner{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Execute implements Runner.
func (h *HTTPRunner) Execute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, context.DeadlineExceeded
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: executor returned %d: %s", ErrUnavailable, resp.StatusCode, snippet)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return res, nil
}
