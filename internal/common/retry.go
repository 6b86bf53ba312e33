package common

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryOptions configures Execute.
type RetryOptions struct {
	// OnRetry is called with the 1-based attempt that failed and the delay
	// that will be waited before the next attempt.
	OnRetry    func(attempt int, delay time.Duration)
	MaxRetries int
	BaseDelay  time.Duration
	UseJitter  bool
}

// Retrier runs operations with exponential backoff.
type Retrier struct {
	random func() float64
	wait   func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithWait replaces the function used to wait between attempts.
func WithWait(wait func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.wait = wait }
}

// NewRetrier creates a retrier using real timers and math/rand.
func NewRetrier(logger *slog.Logger, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		random: rand.Float64,
		wait:   SleepContext,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRetrier = NewRetrier(nil)

// Execute runs operation with the default retrier.
func Execute[T any](ctx context.Context, operation func(context.Context) (T, error), opts RetryOptions) (T, error) {
	return ExecuteWith(ctx, defaultRetrier, operation, opts)
}

// ExecuteVoid runs an operation that returns only an error.
func ExecuteVoid(ctx context.Context, operation func(context.Context) error, opts RetryOptions) error {
	_, err := Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, opts)
	return err
}

// ExecuteWith runs operation up to MaxRetries+1 times using r for waiting and jitter.
// Cancellation and permanent errors are returned immediately. The last failure
// is returned unmodified.
func ExecuteWith[T any](ctx context.Context, r *Retrier, operation func(context.Context) (T, error), opts RetryOptions) (T, error) {
	var zero T

	if opts.MaxRetries < 0 {
		return zero, fmt.Errorf("%w: max retries must be >= 0, got %d", ErrInvalidRetryConfig, opts.MaxRetries)
	}
	if opts.BaseDelay < 0 {
		return zero, fmt.Errorf("%w: base delay must be >= 0, got %s", ErrInvalidRetryConfig, opts.BaseDelay)
	}

	maxAttempts := opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}

		if IsCanceled(err) || IsPermanent(err) || attempt >= maxAttempts {
			return zero, err
		}

		delay := r.backoff(opts, attempt)
		LoggerOrDefault(r.logger).Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err)

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay)
		}

		if waitErr := r.wait(ctx, delay); waitErr != nil {
			return zero, waitErr
		}
	}
}

// backoff returns BaseDelay * 2^(attempt-1), scaled into [0.75, 1.25] with jitter.
func (r *Retrier) backoff(opts RetryOptions, attempt int) time.Duration {
	delay := float64(opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	if opts.UseJitter {
		delay *= 0.75 + r.random()*0.5
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
