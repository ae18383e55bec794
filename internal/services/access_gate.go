package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/logging"
)

// ErrGateUnavailable is returned when the code store cannot be reached and the
// gate is configured to fail closed.
var ErrGateUnavailable = errors.New("access gate: code store unavailable")

// Verification is the outcome of one access check. Remaining is the
// post-decrement count and is only meaningful when Granted is true.
type Verification struct {
	Granted   bool
	Remaining int
	Fallback  bool
}

// AccessPolicy decides what happens when the store fails. With FailOpen the
// gate falls back to an in-process counter seeded from BootstrapCodes.
type AccessPolicy struct {
	FailOpen       bool
	BootstrapCodes map[string]int
}

type AccessGate struct {
	store    AccessCodeStore
	failOpen bool
	fallback *codeCounter
	logger   *zap.Logger
}

func NewAccessGate(store AccessCodeStore, policy AccessPolicy, logger *zap.Logger) *AccessGate {
	g := &AccessGate{store: store, failOpen: policy.FailOpen, logger: logging.OrNop(logger)}
	if policy.FailOpen {
		g.fallback = newCodeCounter(policy.BootstrapCodes)
	}
	return g
}

// Verify consumes one use of code when it exists with uses left.
func (g *AccessGate) Verify(ctx context.Context, code string) (Verification, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Verification{}, nil
	}
	masked := logging.MaskCode(code)
	remaining, ok, err := g.store.DecrementAccessCode(ctx, code)
	if err != nil {
		if g.failOpen {
			v := g.fallback.consume(code)
			g.logger.Warn("access store unavailable, using bootstrap codes",
				zap.String("code", masked), zap.Bool("granted", v.Granted), zap.Error(err))
			return v, nil
		}
		g.logger.Error("access store unavailable, denying", zap.String("code", masked), zap.Error(err))
		return Verification{}, fmt.Errorf("%w: %v", ErrGateUnavailable, err)
	}
	if !ok {
		g.logger.Info("access code rejected", zap.String("code", masked))
		return Verification{}, nil
	}
	g.logger.Info("access code accepted", zap.String("code", masked), zap.Int("remaining", remaining))
	return Verification{Granted: true, Remaining: remaining}, nil
}

type codeCounter struct {
	mu        sync.Mutex
	remaining map[string]int
}

func newCodeCounter(seed map[string]int) *codeCounter {
	c := &codeCounter{remaining: make(map[string]int, len(seed))}
	for code, uses := range seed {
		c.remaining[code] = uses
	}
	return c
}

func (c *codeCounter) consume(code string) Verification {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.remaining[code]
	if !ok || n <= 0 {
		return Verification{Fallback: true}
	}
	c.remaining[code] = n - 1
	return Verification{Granted: true, Remaining: n - 1, Fallback: true}
}
