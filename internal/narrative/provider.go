// Package narrative talks to the hosted language models that write the
// report sections.
package narrative

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/config"
	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/services"
)

// Provider is a single model backend.
type Provider interface {
	services.Generator
	Name() string
}

// NewProvider builds the backend named by cfg.Provider without retries.
func NewProvider(ctx context.Context, cfg config.NarrativeConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown narrative provider %q", cfg.Provider)
	}
}

// New builds the configured provider wrapped in retry and timeout handling.
func New(ctx context.Context, cfg config.NarrativeConfig, logger *zap.Logger) (*Retrying, error) {
	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rc := DefaultRetryConfig()
	rc.MaxAttempts = cfg.MaxAttempts
	rc.Timeout = cfg.Timeout
	r := NewRetrying(p, rc, logger)
	logging.OrNop(logger).Info("narrative provider ready",
		zap.String("provider", p.Name()), zap.Duration("timeout", r.cfg.Timeout), zap.Int("max_attempts", r.cfg.MaxAttempts))
	return r, nil
}
