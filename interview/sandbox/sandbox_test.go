package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// slowRunner parks until its context expires, simulating an executor
// that never answers.
type slowRunner struct{}

func (slowRunner) Execute(ctx context.Context, _ Request) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func TestClientExecute_Validation(t *testing.T) {
	mock := NewMock()
	client := NewClient(mock, ClientConfig{CodeMaxBytes: 64})

	t.Run("oversized code rejected", func(t *testing.T) {
		_, err := client.Execute(context.Background(), Request{
			Code:     strings.Repeat("x", 65),
			Language: LangPython,
		})
		if !errors.Is(err, ErrCodeTooLarge) {
			t.Fatalf("want ErrCodeTooLarge, got %v", err)
		}
	})

	t.Run("unsupported language rejected", func(t *testing.T) {
		_, err := client.Execute(context.Background(), Request{
			Code:     "package main",
			Language: "go",
		})
		if !errors.Is(err, ErrUnsupportedLanguage) {
			t.Fatalf("want ErrUnsupportedLanguage, got %v", err)
		}
	})

	t.Run("rejected submissions never reach the runner", func(t *testing.T) {
		if mock.CallCount() != 0 {
			t.Errorf("runner saw %d calls", mock.CallCount())
		}
	})

	t.Run("both supported languages pass", func(t *testing.T) {
		for _, lang := range []string{LangPython, LangJavaScript} {
			if _, err := client.Execute(context.Background(), Request{Code: "x", Language: lang}); err != nil {
				t.Errorf("%s: %v", lang, err)
			}
		}
	})
}

func TestClientExecute_Observer(t *testing.T) {
	run := func(mock *Mock, req Request) string {
		t.Helper()
		client := NewClient(mock, ClientConfig{})
		var outcome string
		client.SetObserver(func(o string, _ time.Duration) { outcome = o })
		if _, err := client.Execute(context.Background(), req); err != nil && outcome == "" {
			t.Fatalf("execute: %v", err)
		}
		return outcome
	}

	t.Run("clean run", func(t *testing.T) {
		got := run(NewMock(Result{Stdout: "ok"}), Request{Code: "x", Language: LangPython})
		if got != "ok" {
			t.Errorf("outcome %q", got)
		}
	})

	t.Run("nonzero exit", func(t *testing.T) {
		got := run(NewMock(Result{Stderr: "boom", ExitCode: 1}), Request{Code: "x", Language: LangPython})
		if got != "failed" {
			t.Errorf("outcome %q", got)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		got := run(NewMock(), Request{Code: "x", Language: "go"})
		if got != "rejected" {
			t.Errorf("outcome %q", got)
		}
	})

	t.Run("degraded backend", func(t *testing.T) {
		got := run(NewMock().FailWith(ErrUnavailable), Request{Code: "x", Language: LangPython})
		if got != "unavailable" {
			t.Errorf("outcome %q", got)
		}
	})
}

func TestClientExecute_OutputTruncation(t *testing.T) {
	mock := NewMock(Result{
		Stdout:   strings.Repeat("o", 100),
		Stderr:   strings.Repeat("e", 100),
		ExitCode: 0,
	})
	client := NewClient(mock, ClientConfig{OutputTruncateBytes: 40})

	res, err := client.Execute(context.Background(), Request{Code: "print('x')", Language: LangPython})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Stdout) != 40 || len(res.Stderr) != 40 {
		t.Errorf("stdout %d stderr %d bytes", len(res.Stdout), len(res.Stderr))
	}
	if !res.Truncated {
		t.Error("truncation not flagged")
	}

	t.Run("short output passes through untouched", func(t *testing.T) {
		mock := NewMock(Result{Stdout: "ok", ExitCode: 0})
		client := NewClient(mock, ClientConfig{OutputTruncateBytes: 40})
		res, err := client.Execute(context.Background(), Request{Code: "x", Language: LangPython})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res.Stdout != "ok" || res.Truncated {
			t.Errorf("result %+v", res)
		}
	})
}

func TestClientExecute_Degradation(t *testing.T) {
	t.Run("unreachable executor degrades to a result", func(t *testing.T) {
		mock := NewMock().FailWith(ErrUnavailable)
		client := NewClient(mock, ClientConfig{})

		res, err := client.Execute(context.Background(), Request{Code: "x", Language: LangPython})
		if err != nil {
			t.Fatalf("degraded execution returned error: %v", err)
		}
		if res.ExitCode != -1 || !res.Unavailable {
			t.Errorf("result %+v", res)
		}
		if !strings.Contains(res.Stderr, "unavailable") {
			t.Errorf("stderr %q", res.Stderr)
		}
	})

	t.Run("other runner errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		mock := NewMock().FailWith(boom)
		client := NewClient(mock, ClientConfig{})

		if _, err := client.Execute(context.Background(), Request{Code: "x", Language: LangPython}); !errors.Is(err, boom) {
			t.Errorf("want boom, got %v", err)
		}
	})
}

func TestClientExecute_WallClock(t *testing.T) {
	t.Run("expiry becomes a timed-out result", func(t *testing.T) {
		client := NewClient(slowRunner{}, ClientConfig{Timeout: 20 * time.Millisecond})

		res, err := client.Execute(context.Background(), Request{Code: "while True: pass", Language: LangPython})
		if err != nil {
			t.Fatalf("timed-out execution returned error: %v", err)
		}
		if res.ExitCode != 124 || !res.TimedOut {
			t.Errorf("result %+v", res)
		}
	})

	t.Run("caller cancellation stays an error", func(t *testing.T) {
		client := NewClient(slowRunner{}, ClientConfig{Timeout: time.Minute})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		if _, err := client.Execute(ctx, Request{Code: "x", Language: LangPython}); !errors.Is(err, context.Canceled) {
			t.Errorf("want context.Canceled, got %v", err)
		}
	})
}

func TestHTTPRunner(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/execute" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"stdout":"3\n","stderr":"","exit_code":0,"elapsed_ms":12}`))
		}))
		defer srv.Close()

		runner := NewHTTPRunner(srv.URL+"/", nil)
		res, err := runner.Execute(context.Background(), Request{Code: "print(1+2)", Language: LangPython})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res.Stdout != "3\n" || res.ExitCode != 0 || res.ElapsedMS != 12 {
			t.Errorf("result %+v", res)
		}
	})

	t.Run("server error wraps ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "executor overloaded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		runner := NewHTTPRunner(srv.URL, nil)
		if _, err := runner.Execute(context.Background(), Request{Code: "x", Language: LangPython}); !errors.Is(err, ErrUnavailable) {
			t.Errorf("want ErrUnavailable, got %v", err)
		}
	})

	t.Run("unreachable host wraps ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		runner := NewHTTPRunner(srv.URL, nil)
		if _, err := runner.Execute(context.Background(), Request{Code: "x", Language: LangPython}); !errors.Is(err, ErrUnavailable) {
			t.Errorf("want ErrUnavailable, got %v", err)
		}
	})

	t.Run("garbage response wraps ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>proxy error</html>"))
		}))
		defer srv.Close()

		runner := NewHTTPRunner(srv.URL, nil)
		if _, err := runner.Execute(context.Background(), Request{Code: "x", Language: LangPython}); !errors.Is(err, ErrUnavailable) {
			t.Errorf("want ErrUnavailable, got %v", err)
		}
	})
}

func TestMock(t *testing.T) {
	t.Run("replays in order and repeats the last", func(t *testing.T) {
		mock := NewMock(Result{Stdout: "one"}, Result{Stdout: "two"})
		var got []string
		for i := 0; i < 3; i++ {
			res, err := mock.Execute(context.Background(), Request{Code: "x", Language: LangPython})
			if err != nil {
				t.Fatalf("execute %d: %v", i, err)
			}
			got = append(got, res.Stdout)
		}
		if got[0] != "one" || got[1] != "two" || got[2] != "two" {
			t.Errorf("sequence %v", got)
		}
	})

	t.Run("records requests", func(t *testing.T) {
		mock := NewMock()
		_, _ = mock.Execute(context.Background(), Request{Code: "a", Language: LangPython})
		_, _ = mock.Execute(context.Background(), Request{Code: "b", Language: LangJavaScript})
		calls := mock.Calls()
		if len(calls) != 2 || calls[0].Code != "a" || calls[1].Language != LangJavaScript {
			t.Errorf("calls %+v", calls)
		}
	})
}
