package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/services"
)

// RetryConfig bounds a single Generate call.
type RetryConfig struct {
	// MaxAttempts includes the first try.
	MaxAttempts int
	// Timeout applies to each attempt separately.
	Timeout           time.Duration
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		Timeout:           60 * time.Second,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Retrying wraps a Generator with a per-attempt timeout and bounded
// exponential backoff. Only transient failures and attempt timeouts are
// retried.
type Retrying struct {
	next   services.Generator
	cfg    RetryConfig
	logger *zap.Logger
}

func NewRetrying(next services.Generator, cfg RetryConfig, logger *zap.Logger) *Retrying {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Retrying{next: next, cfg: cfg, logger: logging.OrNop(logger)}
}

// Name reports the wrapped provider's name, or "generator" when it has none.
func (r *Retrying) Name() string {
	if p, ok := r.next.(Provider); ok {
		return p.Name()
	}
	return "generator"
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BackoffBase
	b.Multiplier = r.cfg.BackoffMultiplier
	b.MaxInterval = r.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
}

func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var (
		out      string
		attempts int
	)
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		text, err := r.next.Generate(actx, prompt)
		if err == nil {
			out = text
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if IsTransient(err) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return NewTransientError(fmt.Errorf("attempt timed out after %s: %w", r.cfg.Timeout, err))
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("narrative attempt failed, retrying",
			zap.Int("attempt", attempts), zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Duration("backoff", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, r.policy(ctx), notify); err != nil {
		return "", fmt.Errorf("narrative failed after %d attempt(s): %w", attempts, err)
	}
	return out, nil
}
