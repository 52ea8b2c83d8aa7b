package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/provider"
)

// ExhaustedError wraps the last failure after all retry attempts, carrying
// the attempt count and elapsed time. The orchestrator uses this to decide
// between fallback and a partial result.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted %d attempts in %v: %v", e.Attempts, e.Elapsed, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// RetryPolicy is the exponential-backoff decision function shared by every
// external call. Only transient failures are retried.
type RetryPolicy struct {
	maxAttempts int
	base        time.Duration
	cap         time.Duration
	jitter      float64
	logger      *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy builds a policy from configuration
func NewRetryPolicy(cfg model.RetryConfig, logger *zap.Logger) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts: cfg.MaxAttempts,
		base:        cfg.BaseDelay,
		cap:         cfg.MaxDelay,
		jitter:      cfg.Jitter,
		logger:      logger,
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 3
	}
	if p.base <= 0 {
		p.base = time.Second
	}
	if p.cap <= 0 {
		p.cap = 30 * time.Second
	}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	return p
}

// Execute runs op with retry on transient failures. Non-transient errors
// propagate immediately without consuming further attempts.
func (p *RetryPolicy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !provider.IsTransient(err) {
			return err
		}
		if attempt == p.maxAttempts {
			break
		}

		delay := p.delayFor(attempt, err)
		p.logger.Debug("retrying after transient failure",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	return &ExhaustedError{
		Attempts: p.maxAttempts,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}

// delayFor computes min(cap, base*2^(attempt-1)) with uniform jitter,
// honoring a larger server retry-after hint when present.
func (p *RetryPolicy) delayFor(attempt int, err error) time.Duration {
	delay := p.base << (attempt - 1)
	if delay > p.cap || delay <= 0 {
		delay = p.cap
	}
	if hint, ok := provider.RetryAfterHint(err); ok && hint > delay {
		delay = hint
	}
	if p.jitter > 0 {
		spread := (rand.Float64()*2 - 1) * p.jitter // uniform in [-jitter, +jitter]
		delay = time.Duration(float64(delay) * (1 + spread))
	}
	return delay
}
