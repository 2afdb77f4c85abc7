package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// StatusError is a non-200 reply from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// InvocationError means an LLM call exhausted its retries.
type InvocationError struct {
	Agent    string
	Attempts int
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("llm invocation for %s failed after %d attempt(s): %v", e.Agent, e.Attempts, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

type RetryConfig struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// RetryingClient wraps a client with bounded attempts, exponential backoff and
// an optional requests-per-second limit shared by every agent.
type RetryingClient struct {
	inner   domain.LLMClient
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRetryingClient(inner domain.LLMClient, cfg RetryConfig, logger *zap.Logger) *RetryingClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	c := &RetryingClient{
		inner:  inner,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

func (c *RetryingClient) Invoke(ctx context.Context, req domain.LLMRequest) (*domain.LLMResponse, error) {
	var lastErr error
	attempts := 0
	for attempts < c.cfg.MaxAttempts {
		if attempts > 0 {
			if err := c.sleep(ctx, c.backoff(attempts)); err != nil {
				lastErr = err
				break
			}
		}
		attempts++

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		resp, err := c.inner.Invoke(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("llm call failed, retrying",
			zap.String("agent", req.Agent),
			zap.Int("attempt", attempts),
			zap.Error(err))
	}
	return nil, &InvocationError{Agent: req.Agent, Attempts: attempts, Err: lastErr}
}

func (c *RetryingClient) backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 10 {
		shift = 10
	}
	d := c.cfg.BaseBackoff * time.Duration(1<<shift)
	if c.cfg.MaxBackoff > 0 && d > c.cfg.MaxBackoff {
		d = c.cfg.MaxBackoff
	}
	return d
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
