package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/valuesreport/internal/logging"
)

// SectionFailedText replaces the content of a section whose generation failed.
const SectionFailedText = "Content generation failed for this section."

// ValueSlots is the number of values every prompt describes (5 ranked + 5 unranked).
const ValueSlots = 10

//go:embed catalog/sections.yaml
var sectionsYAML []byte

// Generator is the narrative-generation boundary: prompt in, text out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Section is one fixed analysis question with its prompt template.
type Section struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Template    string `yaml:"template"`

	tmpl *template.Template
}

var promptFuncs = template.FuncMap{"names": joinNames}

// ParseSections decodes and compiles section templates.
func ParseSections(data []byte) ([]Section, error) {
	var doc struct {
		Sections []Section `yaml:"sections"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("parse sections: no sections")
	}
	for i := range doc.Sections {
		s := &doc.Sections[i]
		t, err := template.New(s.Title).Funcs(promptFuncs).Option("missingkey=error").Parse(s.Template)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", s.Title, err)
		}
		s.tmpl = t
	}
	return doc.Sections, nil
}

// DefaultSections returns the four embedded report sections.
func DefaultSections() ([]Section, error) {
	return ParseSections(sectionsYAML)
}

// PromptValue is one value as presented to the model.
type PromptValue struct {
	Rank        int
	Name        string
	Description string
	Primary     string
	Secondary   string
}

// PromptData is the template input for every section.
type PromptData struct {
	Top        []PromptValue
	Next       []PromptValue
	Values     []PromptValue
	Age        string
	Country    string
	Occupation string
}

// NewPromptData pads the submission to ValueSlots values with "Unknown" and
// resolves each through the catalog.
func NewPromptData(catalog *Catalog, sub *Submission) PromptData {
	names := make([]string, 0, ValueSlots)
	names = append(names, firstN(sub.TopValues, 5)...)
	for len(names) < 5 {
		names = append(names, UnknownCategory)
	}
	names = append(names, firstN(sub.NextValues, 5)...)
	for len(names) < ValueSlots {
		names = append(names, UnknownCategory)
	}
	values := make([]PromptValue, len(names))
	for i, n := range names {
		d := catalog.Resolve(n)
		values[i] = PromptValue{Rank: i + 1, Name: n, Description: d.Description, Primary: d.Primary, Secondary: d.Secondary}
	}
	data := PromptData{
		Top:        values[:5],
		Next:       values[5:],
		Values:     values,
		Age:        UnknownCategory,
		Country:    orUnknown(sub.Country),
		Occupation: orUnknown(sub.Occupation),
	}
	if sub.Age > 0 {
		data.Age = strconv.Itoa(sub.Age)
	}
	return data
}

// BuildPrompt renders one section's prompt for data.
func BuildPrompt(section Section, data PromptData) (string, error) {
	if section.tmpl == nil {
		return "", fmt.Errorf("section %q: template not compiled", section.Title)
	}
	var buf bytes.Buffer
	if err := section.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("section %q: %w", section.Title, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SectionObserver receives per-section generation outcomes.
type SectionObserver func(title string, ok bool, elapsed time.Duration)

// ReportAssembler turns a submission into a Report by querying the generator
// once per section.
type ReportAssembler struct {
	gen      Generator
	catalog  *Catalog
	sections []Section
	now      func() time.Time
	observe  SectionObserver
	logger   *zap.Logger
}

func NewReportAssembler(gen Generator, catalog *Catalog, sections []Section, logger *zap.Logger) *ReportAssembler {
	return &ReportAssembler{
		gen:      gen,
		catalog:  catalog,
		sections: sections,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logging.OrNop(logger),
	}
}

// WithObserver installs a callback for section outcomes.
func (a *ReportAssembler) WithObserver(fn SectionObserver) *ReportAssembler {
	a.observe = fn
	return a
}

// Sections returns the configured section list.
func (a *ReportAssembler) Sections() []Section { return a.sections }

// Assemble generates all sections concurrently. A failed section carries
// SectionFailedText and never fails the report.
func (a *ReportAssembler) Assemble(ctx context.Context, sub *Submission) *Report {
	data := NewPromptData(a.catalog, sub)
	results := make([]SectionResult, len(a.sections))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, section := range a.sections {
		eg.Go(func() error {
			results[i] = a.generateSection(egCtx, section, data, sub.UserID)
			return nil
		})
	}
	_ = eg.Wait()

	return &Report{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Sections:     results,
		GeneratedAt:  a.now(),
	}
}

func (a *ReportAssembler) generateSection(ctx context.Context, section Section, data PromptData, userID int64) SectionResult {
	res := SectionResult{Title: section.Title}
	prompt, err := BuildPrompt(section, data)
	if err != nil {
		a.logger.Error("build prompt failed", zap.String("section", section.Title), zap.Error(err))
		res.Content, res.Failed = SectionFailedText, true
		return res
	}
	res.Prompt = prompt

	start := time.Now()
	text, err := a.gen.Generate(ctx, prompt)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty response")
	}
	if a.observe != nil {
		a.observe(section.Title, err == nil, elapsed)
	}
	if err != nil {
		a.logger.Warn("section generation failed",
			zap.Int64("user_id", userID), zap.String("section", section.Title),
			zap.Duration("elapsed", elapsed), zap.Error(err))
		res.Content, res.Failed = SectionFailedText, true
		return res
	}
	res.Content = strings.TrimSpace(text)
	return res
}

// joinNames renders "A, B, C, D, and E".
func joinNames(values []PromptValue) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = v.Name
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return UnknownCategory
	}
	return s
}
