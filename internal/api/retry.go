package api

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"strconv"
	"syscall"
	"time"

	apierrors "github.com/dl-alexandre/gdfetch/internal/errors"
	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	"google.golang.org/api/googleapi"
)

// Retrier holds the retry budget and backoff base for API calls
type Retrier struct {
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier allowing maxRetries attempts after the first
func NewRetrier(maxRetries int, retryDelay time.Duration, logger logging.Logger) *Retrier {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrier{
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// WithMaxRetries returns a copy of r with a different retry budget
func (r *Retrier) WithMaxRetries(maxRetries int) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	cp := *r
	cp.maxRetries = maxRetries
	return &cp
}

// MaxRetries returns the retry budget
func (r *Retrier) MaxRetries() int {
	return r.maxRetries
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecuteWithRetry executes an API call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, r *Retrier, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := r.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("store", reqCtx.Store),
		logging.F("fileIds", reqCtx.InvolvedFileIDs),
	)

	start := time.Now()

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying API operation",
				logging.F("attempt", attempt),
				logging.F("maxRetries", r.maxRetries),
			)
		}

		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("API operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !isRetryable(lastErr) {
			logger.Error("API operation failed (non-retryable)",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, classifyError(lastErr, reqCtx, r.logger)
		}

		if attempt < r.maxRetries {
			delay := calculateBackoff(r.retryDelay, attempt, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return result, classifyError(err, reqCtx, r.logger)
			}
		}
	}

	logger.Error("API operation failed after max retries",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", r.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, classifyError(lastErr, reqCtx, r.logger)
}

// isRetryable reports whether err is a transient server or network failure
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		case 403:
			for _, e := range apiErr.Errors {
				switch e.Reason {
				case "rateLimitExceeded", "userRateLimitExceeded", "sharingRateLimitExceeded":
					return true
				}
			}
		}
		return false
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Header != nil {
		if retryAfter := apiErr.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > maxDelay {
					return maxDelay
				}
				return delay
			}
		}
	}

	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// ±25% jitter
	if jitterRange := delay / 4; jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay += jitter
	}

	if delay < 0 {
		delay = baseDelay
	}
	return delay
}

func classifyError(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	return apierrors.ClassifyGoogleAPIError("drive", err, reqCtx, logger)
}
