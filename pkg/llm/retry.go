package llm

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/Finndersen/adept-ai/pkg/errors"
)

// RetryConfig controls how a RetryProvider backs off between attempts.
type RetryConfig struct {
	// MaxAttempts includes the first call. Values below 1 mean 1.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is a fraction of the delay; 0.1 means ±10%.
	Jitter float64
	// IsRecoverable reports whether an error is worth another attempt.
	IsRecoverable func(error) bool
}

// DefaultRetryConfig returns three attempts starting at 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: IsRecoverable,
	}
}

// WithMaxAttempts returns a copy of the config with MaxAttempts set.
func (c RetryConfig) WithMaxAttempts(n int) RetryConfig {
	c.MaxAttempts = n
	return c
}

// RetryProvider retries failed chat calls of the wrapped provider.
type RetryProvider struct {
	Provider
	cfg   RetryConfig
	sleep func(context.Context, time.Duration) error
}

// WithRetry wraps p so recoverable errors are retried with exponential
// backoff.
func WithRetry(p Provider, cfg RetryConfig) *RetryProvider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.IsRecoverable == nil {
		cfg.IsRecoverable = IsRecoverable
	}
	return &RetryProvider{Provider: p, cfg: cfg, sleep: sleepContext}
}

// Chat implements Provider.
func (r *RetryProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, backoff(attempt, r.cfg)); err != nil {
				return nil, errors.New(errors.CodeTimeout, "context canceled during retry", err).
					WithContext("attempt", attempt).
					WithContext("max_attempts", r.cfg.MaxAttempts)
			}
		}
		resp, err := r.Provider.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !r.cfg.IsRecoverable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// Name reports the wrapped provider's name.
func (r *RetryProvider) Name() string { return ProviderName(r.Provider) }

// IsRecoverable treats cancellation as final and otherwise honours the
// Recoverable flag of an AdeptError. Plain errors are retried.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *errors.AdeptError
	if stderrors.As(err, &ae) {
		return ae.Recoverable
	}
	return true
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	mult := cfg.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		spread := float64(delay) * cfg.Jitter
		delay += time.Duration(spread * (2*rand.Float64() - 1))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
