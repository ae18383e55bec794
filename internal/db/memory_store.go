package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/valuesreport/internal/services"
)

// MemoryStore keeps everything in process. One mutex guards all maps, which
// makes the access-code decrement atomic.
type MemoryStore struct {
	mu          sync.Mutex
	codes       map[string]*services.AccessCode
	submissions map[string]*services.Submission
	byUser      map[int64]string
	reports     map[string]*services.Report
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:       map[string]*services.AccessCode{},
		submissions: map[string]*services.Submission{},
		byUser:      map[int64]string{},
		reports:     map[string]*services.Report{},
		now:         time.Now,
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetAccessCode(_ context.Context, code string) (*services.AccessCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *ac
	return &cp, nil
}

func (m *MemoryStore) DecrementAccessCode(_ context.Context, code string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.codes[code]
	if !ok || ac.RemainingUses <= 0 {
		return 0, false, nil
	}
	ac.RemainingUses--
	return ac.RemainingUses, true, nil
}

func (m *MemoryStore) PutAccessCode(_ context.Context, ac *services.AccessCode) error {
	if err := validateAccessCode(ac); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	code := strings.TrimSpace(ac.Code)
	if existing, ok := m.codes[code]; ok {
		existing.RemainingUses = ac.RemainingUses
		return nil
	}
	created := ac.CreatedAt
	if created.IsZero() {
		created = m.now().UTC()
	}
	m.codes[code] = &services.AccessCode{Code: code, RemainingUses: ac.RemainingUses, CreatedAt: created}
	return nil
}

func (m *MemoryStore) ListAccessCodes(context.Context) ([]*services.AccessCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*services.AccessCode, 0, len(m.codes))
	for _, ac := range m.codes {
		cp := *ac
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) UpsertSubmission(_ context.Context, sub *services.Submission) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	stored := cloneSubmission(sub)
	stored.UpdatedAt = now
	if id, ok := m.byUser[sub.UserID]; ok {
		stored.ID = id
		stored.CreatedAt = m.submissions[id].CreatedAt
	} else {
		stored.ID = uuid.NewString()
		stored.CreatedAt = now
		m.byUser[sub.UserID] = stored.ID
	}
	m.submissions[stored.ID] = stored
	return stored.ID, nil
}

func (m *MemoryStore) GetSubmission(_ context.Context, id string) (*services.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, services.NewNotFoundError("submission not found")
	}
	return cloneSubmission(sub), nil
}

func (m *MemoryStore) ListSubmissions(context.Context) ([]*services.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*services.Submission, 0, len(m.submissions))
	for _, sub := range m.submissions {
		out = append(out, cloneSubmission(sub))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *MemoryStore) AppendReport(_ context.Context, r *services.Report) error {
	if err := validateReport(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[r.SubmissionID]
	if !ok {
		return services.NewNotFoundError("submission not found")
	}
	if _, ok := m.reports[r.ID]; ok {
		return services.NewConflictError("report already exists")
	}
	stored := cloneReport(r)
	stored.Snapshot = cloneSubmission(sub)
	m.reports[r.ID] = stored
	return nil
}

func (m *MemoryStore) GetReport(_ context.Context, id string) (*services.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, services.NewNotFoundError("report not found")
	}
	return cloneReport(r), nil
}

func cloneSubmission(s *services.Submission) *services.Submission {
	cp := *s
	cp.TopValues = append([]string(nil), s.TopValues...)
	cp.TopCategories = append([]string(nil), s.TopCategories...)
	cp.NextValues = append([]string(nil), s.NextValues...)
	return &cp
}

func cloneReport(r *services.Report) *services.Report {
	cp := *r
	cp.Sections = append([]services.SectionResult(nil), r.Sections...)
	if r.Snapshot != nil {
		cp.Snapshot = cloneSubmission(r.Snapshot)
	}
	return &cp
}
