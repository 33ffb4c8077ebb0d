package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/developer-az/commit-warrior/internal/errmsg"
)

// Options controls the retry budget and backoff curve
type Options struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	RetryableKinds []errmsg.Kind
}

// DefaultOptions retries network, rate-limit and server failures three times
// with 1s, 2s, 4s delays capped at 30s.
func DefaultOptions() Options {
	return Options{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		BackoffFactor:  2,
		RetryableKinds: []errmsg.Kind{errmsg.KindNetwork, errmsg.KindRateLimit, errmsg.KindServerAPI},
	}
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs operations with exponential backoff
type Executor struct {
	opts   Options
	sleep  SleepFunc
	logger *slog.Logger
}

// New creates an executor. A nil logger uses slog.Default().
func New(opts Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		opts:   opts,
		sleep:  sleepContext,
		logger: logger,
	}
}

// WithSleep returns a copy of the executor that waits with fn
func (e *Executor) WithSleep(fn SleepFunc) *Executor {
	cp := *e
	cp.sleep = fn
	return &cp
}

// Delay returns the wait before the retry that follows attempt (0-based)
func (e *Executor) Delay(attempt int) time.Duration {
	d := float64(e.opts.BaseDelay) * math.Pow(e.opts.BackoffFactor, float64(attempt))
	if d > float64(e.opts.MaxDelay) {
		return e.opts.MaxDelay
	}
	return time.Duration(d)
}

// Retryable reports whether err is worth another attempt
func (e *Executor) Retryable(err error) bool {
	kind := errmsg.Classify(err)
	for _, k := range e.opts.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return IsRetryableError(err)
}

// Do runs op up to MaxRetries+1 times. The last error is returned as-is.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Info("Operation succeeded after retry", "attempts", attempt+1)
			}
			return result, nil
		}
		lastErr = err

		retryable := e.Retryable(err)
		if !retryable || attempt == e.opts.MaxRetries {
			e.logger.Debug("Operation failed",
				"attempts", attempt+1,
				"kind", errmsg.Classify(err),
				"retryable", retryable,
				"error", err,
			)
			return zero, err
		}

		delay := e.Delay(attempt)
		e.logger.Warn("Operation failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"kind", errmsg.Classify(err),
			"error", err,
		)

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// IsRetryableError is the structural check: transport failures, 5xx, 429,
// and 403 with an exhausted rate limit.
func IsRetryableError(err error) bool {
	if errmsg.IsTransport(err) {
		return true
	}

	var httpErr errmsg.HTTPFailure
	if errors.As(err, &httpErr) {
		status := httpErr.Status()
		switch {
		case status >= 500:
			return true
		case status == http.StatusTooManyRequests:
			return true
		case status == http.StatusForbidden && httpErr.Headers() != nil &&
			httpErr.Headers().Get("X-RateLimit-Remaining") == "0":
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
