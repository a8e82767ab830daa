package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/metrics"
)

// RetryPolicy decides whether a failed attempt is retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy allows three attempts with a short pause for relaunch.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
	}
}

// ShouldRetry only retries failures of the engine process itself.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	return errors.Is(err, ErrEngineClosed)
}

// Backoff returns the pause before the next attempt.
func (p RetryPolicy) Backoff(_ int) time.Duration {
	return p.Delay
}

// RetryController runs acquire → open context → pipeline → close as one unit
// of work and retries it when the engine dies underneath.
type RetryController struct {
	sessions *SessionManager
	pipeline *Pipeline
	policy   RetryPolicy
	logger   *zap.Logger
}

// NewRetryController builds a controller.
func NewRetryController(sessions *SessionManager, pipeline *Pipeline, policy RetryPolicy, logger *zap.Logger) *RetryController {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryController{
		sessions: sessions,
		pipeline: pipeline,
		policy:   policy,
		logger:   logger,
	}
}

// Execute renders job, returning the image or the last observed error.
func (c *RetryController) Execute(ctx context.Context, job Job, opts ContextOptions) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		data, engine, err := c.attempt(ctx, job, opts)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !c.policy.ShouldRetry(err, attempt) {
			return nil, lastErr
		}

		metrics.ObserveRenderRetry()
		c.logger.Warn("engine closed during render; retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Error(err),
		)
		c.sessions.Invalidate(engine)

		timer := time.NewTimer(c.policy.Backoff(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w (retry aborted: %v)", lastErr, ctx.Err())
		}
	}
}

func (c *RetryController) attempt(ctx context.Context, job Job, opts ContextOptions) ([]byte, Engine, error) {
	engine, err := c.sessions.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	var data []byte
	err = c.sessions.WithPage(ctx, engine, opts, func(page Page) error {
		var runErr error
		data, runErr = c.pipeline.Run(ctx, page, job)
		return runErr
	})
	if err != nil {
		return nil, engine, err
	}
	return data, engine, nil
}
