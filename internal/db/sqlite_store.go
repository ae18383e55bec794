package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/services"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and brings
// its schema up to date.
func OpenSQLite(ctx context.Context, path, migrationsDir string, logger *zap.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", filepath.ToSlash(path))
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	applied, err := RunMigrations(ctx, sqlDB, migrationsDir)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	store, err := NewSQLiteStore(sqlDB, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if len(applied) > 0 {
		store.logger.Info("sqlite migrations applied", zap.Strings("files", applied), zap.String("path", path))
	}
	return store, nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	return &SQLiteStore{db: db, logger: logging.OrNop(logger), now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetAccessCode(ctx context.Context, code string) (*services.AccessCode, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT code, remaining_uses, created_at FROM access_codes WHERE code = ?", code)
	var ac services.AccessCode
	var created string
	if err := row.Scan(&ac.Code, &ac.RemainingUses, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get access code: %w", err)
	}
	ac.CreatedAt = parseStamp(created)
	return &ac, nil
}

// DecrementAccessCode is a single conditional UPDATE, so concurrent callers
// can never drive remaining_uses below zero.
func (s *SQLiteStore) DecrementAccessCode(ctx context.Context, code string) (int, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE access_codes SET remaining_uses = remaining_uses - 1
		 WHERE code = ? AND remaining_uses > 0
		 RETURNING remaining_uses`, code)
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("decrement access code: %w", err)
	}
	return remaining, true, nil
}

func (s *SQLiteStore) PutAccessCode(ctx context.Context, ac *services.AccessCode) error {
	if err := validateAccessCode(ac); err != nil {
		return err
	}
	created := ac.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_codes (code, remaining_uses, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET remaining_uses = excluded.remaining_uses`,
		strings.TrimSpace(ac.Code), ac.RemainingUses, stamp(created))
	if err != nil {
		return fmt.Errorf("put access code: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAccessCodes(ctx context.Context) ([]*services.AccessCode, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT code, remaining_uses, created_at FROM access_codes ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	defer rows.Close()
	var out []*services.AccessCode
	for rows.Next() {
		var ac services.AccessCode
		var created string
		if err := rows.Scan(&ac.Code, &ac.RemainingUses, &created); err != nil {
			return nil, fmt.Errorf("scan access code: %w", err)
		}
		ac.CreatedAt = parseStamp(created)
		out = append(out, &ac)
	}
	return out, rows.Err()
}

// UpsertSubmission keeps one row per user. A repeat confirmation replaces the
// fields but keeps the original id and created_at.
func (s *SQLiteStore) UpsertSubmission(ctx context.Context, sub *services.Submission) (string, error) {
	top, err := json.Marshal(orEmpty(sub.TopValues))
	if err != nil {
		return "", fmt.Errorf("encode top values: %w", err)
	}
	cats, err := json.Marshal(orEmpty(sub.TopCategories))
	if err != nil {
		return "", fmt.Errorf("encode top categories: %w", err)
	}
	next, err := json.Marshal(orEmpty(sub.NextValues))
	if err != nil {
		return "", fmt.Errorf("encode next values: %w", err)
	}
	now := stamp(s.now())
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO submissions
		   (id, user_id, username, access_code, top_values, top_categories, next_values,
		    age, country, occupation, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username = excluded.username,
		   access_code = excluded.access_code,
		   top_values = excluded.top_values,
		   top_categories = excluded.top_categories,
		   next_values = excluded.next_values,
		   age = excluded.age,
		   country = excluded.country,
		   occupation = excluded.occupation,
		   updated_at = excluded.updated_at
		 RETURNING id`,
		uuid.NewString(), sub.UserID, sub.Username, sub.AccessCode, string(top), string(cats), string(next),
		sub.Age, sub.Country, sub.Occupation, now, now)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("upsert submission: %w", err)
	}
	return id, nil
}

const submissionColumns = `id, user_id, username, access_code, top_values, top_categories, next_values,
	age, country, occupation, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*services.Submission, error) {
	var sub services.Submission
	var top, cats, next, created, updated string
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Username, &sub.AccessCode, &top, &cats, &next,
		&sub.Age, &sub.Country, &sub.Occupation, &created, &updated); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{top, &sub.TopValues}, {cats, &sub.TopCategories}, {next, &sub.NextValues}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decode submission %s lists: %w", sub.ID, err)
		}
	}
	sub.CreatedAt = parseStamp(created)
	sub.UpdatedAt = parseStamp(updated)
	return &sub, nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*services.Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+submissionColumns+" FROM submissions WHERE id = ?", id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.NewNotFoundError("submission not found")
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context) ([]*services.Submission, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+submissionColumns+" FROM submissions ORDER BY created_at, user_id")
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var out []*services.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// AppendReport stores the report with a snapshot of its submission taken in
// the same transaction.
func (s *SQLiteStore) AppendReport(ctx context.Context, r *services.Report) error {
	if err := validateReport(r); err != nil {
		return err
	}
	sections, err := json.Marshal(r.Sections)
	if err != nil {
		return fmt.Errorf("encode report sections: %w", err)
	}
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sub, err := scanSubmission(tx.QueryRowContext(ctx,
		"SELECT "+submissionColumns+" FROM submissions WHERE id = ?", r.SubmissionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return services.NewNotFoundError("submission not found")
		}
		return fmt.Errorf("snapshot submission: %w", err)
	}
	snapshot, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO reports (id, submission_id, user_id, sections, snapshot, generated_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.SubmissionID, r.UserID, string(sections), string(snapshot), stamp(generated))
	if err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	s.logger.Debug("report stored", zap.String("report_id", r.ID), zap.Int64("user_id", r.UserID))
	return nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*services.Report, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, submission_id, user_id, sections, snapshot, generated_at FROM reports WHERE id = ?", id)
	var r services.Report
	var sections, snapshot, generated string
	if err := row.Scan(&r.ID, &r.SubmissionID, &r.UserID, &sections, &snapshot, &generated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.NewNotFoundError("report not found")
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal([]byte(sections), &r.Sections); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	if snapshot != "" {
		r.Snapshot = &services.Submission{}
		if err := json.Unmarshal([]byte(snapshot), r.Snapshot); err != nil {
			return nil, fmt.Errorf("decode report %s snapshot: %w", id, err)
		}
	}
	r.GeneratedAt = parseStamp(generated)
	return &r, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
