package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	"google.golang.org/api/googleapi"
)

func testRetrier(maxRetries int) (*Retrier, *[]time.Duration) {
	var sleeps []time.Duration
	r := NewRetrier(maxRetries, 10*time.Millisecond, nil)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return r, &sleeps
}

func testReqCtx() *types.RequestContext {
	return NewRequestContext("GoogleDrive", types.RequestTypeDownload, "file123")
}

func TestExecuteWithRetry_SucceedsAfterTransientErrors(t *testing.T) {
	r, sleeps := testRetrier(3)
	calls := 0

	got, err := ExecuteWithRetry(context.Background(), r, testReqCtx(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &googleapi.Error{Code: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*sleeps) != 2 {
		t.Errorf("sleeps = %d, want 2", len(*sleeps))
	}
}

func TestExecuteWithRetry_ExhaustsBudget(t *testing.T) {
	r, _ := testRetrier(2)
	calls := 0
	transient := &googleapi.Error{Code: 500, Message: "backend error"}

	_, err := ExecuteWithRetry(context.Background(), r, testReqCtx(), func() (int, error) {
		calls++
		return 0, transient
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}

	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *utils.AppError, got %T", err)
	}
	if appErr.CLIError.Code != utils.ErrCodeNetworkError {
		t.Errorf("Code = %s, want %s", appErr.CLIError.Code, utils.ErrCodeNetworkError)
	}
	if !errors.Is(err, transient) {
		t.Error("error should unwrap to the transport error")
	}
}

func TestExecuteWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	r, sleeps := testRetrier(5)
	calls := 0

	_, err := ExecuteWithRetry(context.Background(), r, testReqCtx(), func() (int, error) {
		calls++
		return 0, &googleapi.Error{Code: 404}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", *sleeps)
	}
}

func TestExecuteWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	r, _ := testRetrier(5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := ExecuteWithRetry(ctx, r, testReqCtx(), func() (int, error) {
		calls++
		cancel()
		return 0, &googleapi.Error{Code: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &googleapi.Error{Code: 429}, true},
		{"502", &googleapi.Error{Code: 502}, true},
		{"404", &googleapi.Error{Code: 404}, false},
		{"403 rate limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, true},
		{"403 forbidden", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}}, false},
		{"unexpected EOF", io.ErrUnexpectedEOF, true},
		{"net timeout", timeoutErr{}, true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	for attempt := 0; attempt < 10; attempt++ {
		delay := calculateBackoff(base, attempt, &googleapi.Error{Code: 503})
		if delay <= 0 {
			t.Errorf("attempt %d: delay %v should be positive", attempt, delay)
		}
		if delay > maxDelay+maxDelay/4 {
			t.Errorf("attempt %d: delay %v exceeds cap", attempt, delay)
		}
	}

	retryAfter := &googleapi.Error{Code: 429, Header: http.Header{"Retry-After": []string{"2"}}}
	if got := calculateBackoff(base, 0, retryAfter); got != 2*time.Second {
		t.Errorf("Retry-After delay = %v, want 2s", got)
	}

	if got := calculateBackoff(0, 0, io.ErrUnexpectedEOF); got != 0 {
		t.Errorf("zero base delay = %v, want 0", got)
	}
}

func TestRetrier_WithMaxRetries(t *testing.T) {
	r := NewRetrier(3, time.Second, nil)
	cp := r.WithMaxRetries(7)

	if r.MaxRetries() != 3 {
		t.Errorf("original MaxRetries = %d, want 3", r.MaxRetries())
	}
	if cp.MaxRetries() != 7 {
		t.Errorf("copy MaxRetries = %d, want 7", cp.MaxRetries())
	}
	if r.WithMaxRetries(-1).MaxRetries() != 0 {
		t.Error("negative retries should clamp to 0")
	}
}
