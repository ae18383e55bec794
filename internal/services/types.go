package services

import (
	"context"
	"time"
)

// AccessCode gates entry to the flow; RemainingUses never goes below zero.
type AccessCode struct {
	Code          string    `json:"code"`
	RemainingUses int       `json:"remaining_uses"`
	CreatedAt     time.Time `json:"created_at"`
}

// Submission is the persisted copy of a confirmed conversation.
type Submission struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username,omitempty"`
	AccessCode    string    `json:"access_code"`
	TopValues     []string  `json:"top_values"`
	TopCategories []string  `json:"top_categories"`
	NextValues    []string  `json:"next_values"`
	Age           int       `json:"age"`
	Country       string    `json:"country"`
	Occupation    string    `json:"occupation"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SectionResult is one generated report section and the prompt behind it.
type SectionResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Prompt  string `json:"prompt"`
	Failed  bool   `json:"failed,omitempty"`
}

// Report is append-only once written. Snapshot is the submission as it stood
// when the report was appended; a later upsert of the same user's submission
// does not change it.
type Report struct {
	ID           string          `json:"id"`
	SubmissionID string          `json:"submission_id"`
	UserID       int64           `json:"user_id"`
	Sections     []SectionResult `json:"sections"`
	Snapshot     *Submission     `json:"snapshot,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// Contents maps section title to generated text.
func (r *Report) Contents() map[string]string {
	out := make(map[string]string, len(r.Sections))
	for _, s := range r.Sections {
		out[s.Title] = s.Content
	}
	return out
}

// Prompts maps section title to the exact prompt sent.
func (r *Report) Prompts() map[string]string {
	out := make(map[string]string, len(r.Sections))
	for _, s := range r.Sections {
		out[s.Title] = s.Prompt
	}
	return out
}

// AccessCodeStore is the access-code half of the persistence boundary.
// DecrementAccessCode must be a single atomic conditional update: it succeeds
// only while remaining uses are positive and reports the post-decrement count.
type AccessCodeStore interface {
	GetAccessCode(ctx context.Context, code string) (*AccessCode, error)
	DecrementAccessCode(ctx context.Context, code string) (remaining int, ok bool, err error)
}

// SubmissionStore persists confirmed submissions and their generated reports.
// AppendReport records a snapshot of the referenced submission with the report.
type SubmissionStore interface {
	UpsertSubmission(ctx context.Context, sub *Submission) (string, error)
	AppendReport(ctx context.Context, r *Report) error
}

// ReportStore reads reports back for share-link downloads.
type ReportStore interface {
	GetReport(ctx context.Context, id string) (*Report, error)
	GetSubmission(ctx context.Context, id string) (*Submission, error)
}

// AdminStore backs the admin CLI and HTTP endpoints.
type AdminStore interface {
	PutAccessCode(ctx context.Context, ac *AccessCode) error
	ListAccessCodes(ctx context.Context) ([]*AccessCode, error)
	ListSubmissions(ctx context.Context) ([]*Submission, error)
}
