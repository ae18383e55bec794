// Package db holds the persistence implementations: an in-memory store for
// tests and single-process runs, and a SQLite store for production.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/config"
	"github.com/soaringjerry/valuesreport/internal/services"
)

// Store is everything the bot, the HTTP API and the CLI need from persistence.
type Store interface {
	services.AccessCodeStore
	services.SubmissionStore
	services.ReportStore
	services.AdminStore
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.Path, cfg.MigrationsDir, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func validateAccessCode(ac *services.AccessCode) error {
	if ac == nil || strings.TrimSpace(ac.Code) == "" {
		return services.NewInvalidError("access code is required")
	}
	if ac.RemainingUses < 0 {
		return services.NewInvalidError("remaining uses must not be negative")
	}
	return nil
}

func validateReport(r *services.Report) error {
	if r == nil || r.ID == "" {
		return services.NewInvalidError("report id is required")
	}
	if r.SubmissionID == "" {
		return services.NewInvalidError("report submission id is required")
	}
	return nil
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
