// Package render lays out a finished values report as a PDF document.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/services"
)

const (
	lineHeight = 5.5
	bodySize   = 11
)

// PDFRenderer writes reports as A4 PDFs into a scratch directory. Text is
// set in the bundled DejaVu Sans Condensed, with an optional fallback face for
// scripts DejaVu does not cover.
type PDFRenderer struct {
	dir      string
	logger   *zap.Logger
	fonts    *fontSet
	fallback string
	compress bool
}

// Option configures a PDFRenderer.
type Option func(*PDFRenderer)

// WithFallbackFont adds a TrueType file consulted for characters missing from
// the bundled face. An empty path is ignored.
func WithFallbackFont(path string) Option {
	return func(r *PDFRenderer) { r.fallback = path }
}

func NewPDFRenderer(dir string, logger *zap.Logger, opts ...Option) (*PDFRenderer, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	r := &PDFRenderer{dir: dir, logger: logging.OrNop(logger), compress: true}
	for _, opt := range opts {
		opt(r)
	}
	base, err := bundledFace()
	if err != nil {
		return nil, err
	}
	r.fonts = &fontSet{faces: []face{base}}
	if r.fallback != "" {
		extra, err := fileFace(fallbackFamily, r.fallback)
		if err != nil {
			return nil, err
		}
		r.fonts.faces = append(r.fonts.faces, extra)
	}
	return r, nil
}

// Render writes doc to a new temporary file and returns its path. The caller
// removes the file.
func (r *PDFRenderer) Render(ctx context.Context, doc *services.Document) (string, error) {
	data, err := r.Bytes(ctx, doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.CreateTemp(r.dir, "values-report-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close artifact: %w", err)
	}
	r.logger.Debug("report rendered", zap.String("path", f.Name()), zap.Int("bytes", len(data)))
	return f.Name(), nil
}

// Bytes renders doc in memory.
func (r *PDFRenderer) Bytes(ctx context.Context, doc *services.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil || doc.Submission == nil || doc.Report == nil {
		return nil, fmt.Errorf("render: incomplete document")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	r.fonts.register(pdf)
	l := &layout{pdf: pdf, fonts: r.fonts}
	pdf.SetTitle("Personal Values Report", true)
	pdf.SetAuthor("Values Report Bot", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(baseFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	l.cover(doc)
	l.profile(doc.Submission)
	for _, s := range doc.Report.Sections {
		l.section(s)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	if l.dropped > 0 {
		r.logger.Warn("characters without a glyph left out of report",
			zap.String("report_id", doc.Report.ID),
			zap.Int("dropped", l.dropped),
		)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("output pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type layout struct {
	pdf     *fpdf.Fpdf
	fonts   *fontSet
	style   string
	size    float64
	dropped int
}

func (l *layout) font(style string, size float64) {
	l.style, l.size = style, size
	l.pdf.SetFont(baseFamily, style, size)
}

func (l *layout) runs(text string) []run {
	runs, dropped := l.fonts.split(text)
	l.dropped += dropped
	return runs
}

// write flows text at the current position, switching face per run.
func (l *layout) write(h float64, text string) {
	for _, r := range l.runs(text) {
		l.pdf.SetFont(r.family, l.style, l.size)
		l.pdf.Write(h, r.text)
	}
	l.pdf.SetFont(baseFamily, l.style, l.size)
}

// line writes text as its own paragraph.
func (l *layout) line(h float64, text string) {
	l.write(h, text)
	l.pdf.Ln(h)
}

// centered writes a single centred line.
func (l *layout) centered(h float64, text string) {
	runs := l.runs(text)
	w := 0.0
	for _, r := range runs {
		l.pdf.SetFont(r.family, l.style, l.size)
		w += l.pdf.GetStringWidth(r.text)
	}
	pageW, _ := l.pdf.GetPageSize()
	left, _, right, _ := l.pdf.GetMargins()
	x := left + (pageW-left-right-w)/2
	if x < left {
		x = left
	}
	l.pdf.SetX(x)
	for _, r := range runs {
		l.pdf.SetFont(r.family, l.style, l.size)
		l.pdf.Write(h, r.text)
	}
	l.pdf.SetFont(baseFamily, l.style, l.size)
	l.pdf.Ln(h)
}

func (l *layout) cover(doc *services.Document) {
	l.pdf.SetTextColor(33, 56, 102)
	l.font("B", 22)
	l.centered(12, "Personal Values Report")
	l.pdf.SetTextColor(80, 80, 80)
	l.font("", 12)
	l.centered(7, "Prepared for "+doc.DisplayName)
	l.font("I", 10)
	l.centered(6, doc.GeneratedOn.Format("January 2, 2006"))
	l.pdf.Ln(8)
	l.pdf.SetTextColor(0, 0, 0)
}

func (l *layout) heading(title string) {
	l.pdf.Ln(3)
	l.pdf.SetTextColor(33, 56, 102)
	l.font("B", 14)
	l.line(7, title)
	l.pdf.SetTextColor(0, 0, 0)
	l.pdf.Ln(2)
}

func (l *layout) profile(sub *services.Submission) {
	l.heading("Your Values")
	l.font("B", bodySize)
	l.line(lineHeight, "Top 5 Values (ranked)")
	for i, v := range sub.TopValues {
		l.listItem(Block{Kind: Numbered, Number: i + 1, Spans: []Span{{Text: v}}})
	}
	l.pdf.Ln(2)
	l.font("B", bodySize)
	l.line(lineHeight, "Values 6-10")
	next := "None"
	if len(sub.NextValues) > 0 {
		next = strings.Join(sub.NextValues, ", ")
	}
	l.font("", bodySize)
	l.line(lineHeight, next)
	l.pdf.Ln(2)
	for _, row := range [][2]string{
		{"Age", fmt.Sprint(sub.Age)},
		{"Country", sub.Country},
		{"Occupation", sub.Occupation},
	} {
		l.font("B", bodySize)
		l.write(lineHeight, row[0]+": ")
		l.font("", bodySize)
		l.line(lineHeight, row[1])
	}
	l.pdf.Ln(4)
}

func (l *layout) section(s services.SectionResult) {
	l.heading(s.Title)
	content := s.Content
	if strings.TrimSpace(content) == "" {
		content = "Content not available"
	}
	for _, b := range ParseNarrative(content) {
		switch b.Kind {
		case Heading:
			l.font("B", 12)
			l.line(6, b.Plain())
			l.pdf.Ln(1)
		case Bullet, Numbered:
			l.listItem(b)
		default:
			l.spans(b.Spans)
			l.pdf.Ln(lineHeight * 1.6)
		}
	}
	l.pdf.Ln(3)
}

func (l *layout) listItem(b Block) {
	left, top, right, _ := l.pdf.GetMargins()
	indent := left + 4 + float64(b.Depth)*6
	marker := "•"
	if b.Kind == Numbered {
		marker = fmt.Sprintf("%d.", b.Number)
	}
	l.font("", bodySize)
	l.pdf.SetX(indent)
	l.write(lineHeight, marker)
	l.pdf.SetMargins(indent+6, top, right)
	l.pdf.SetX(indent + 6)
	l.spans(b.Spans)
	l.pdf.SetMargins(left, top, right)
	l.pdf.Ln(lineHeight + 1)
}

func (l *layout) spans(spans []Span) {
	for _, s := range spans {
		style := ""
		if s.Bold {
			style += "B"
		}
		if s.Italic {
			style += "I"
		}
		l.font(style, bodySize)
		l.write(lineHeight, s.Text)
	}
}
