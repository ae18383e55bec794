package render

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
	Bullet
	Numbered
)

// Span is a run of text with one style.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
}

// Block is one laid-out unit of narrative text. Depth is the list nesting
// level, starting at 0.
type Block struct {
	Kind   BlockKind
	Number int
	Depth  int
	Spans  []Span
}

func (b Block) Plain() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

var md = goldmark.New()

// ParseNarrative turns model output into blocks. Only the markdown the models
// actually emit is honoured: headings, paragraphs, bullet and numbered lists,
// bold and italic. Everything else degrades to plain paragraphs.
func ParseNarrative(src string) []Block {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))
	var blocks []Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = appendBlock(blocks, n, source, 0)
	}
	return blocks
}

func appendBlock(blocks []Block, n ast.Node, src []byte, depth int) []Block {
	switch node := n.(type) {
	case *ast.Heading:
		return appendIfText(blocks, Block{Kind: Heading, Spans: inlineSpans(node, src)})
	case *ast.List:
		num := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			b := Block{Kind: Bullet, Depth: depth}
			if node.IsOrdered() {
				b.Kind, b.Number = Numbered, num
				num++
			}
			var nested []Block
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if _, ok := c.(*ast.List); ok {
					nested = appendBlock(nested, c, src, depth+1)
					continue
				}
				if len(b.Spans) > 0 {
					b.Spans = append(b.Spans, Span{Text: " "})
				}
				b.Spans = append(b.Spans, inlineSpans(c, src)...)
			}
			blocks = appendIfText(blocks, b)
			blocks = append(blocks, nested...)
		}
		return blocks
	case *ast.Paragraph, *ast.TextBlock:
		return appendIfText(blocks, Block{Kind: Paragraph, Spans: inlineSpans(node, src)})
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			blocks = appendBlock(blocks, c, src, depth)
		}
		return blocks
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		return appendIfText(blocks, Block{Kind: Paragraph, Spans: []Span{{Text: linesText(n, src)}}})
	}
	return blocks
}

func appendIfText(blocks []Block, b Block) []Block {
	b.Spans = mergeSpans(b.Spans)
	if strings.TrimSpace(b.Plain()) == "" {
		return blocks
	}
	return append(blocks, b)
}

func inlineSpans(n ast.Node, src []byte) []Span {
	var spans []Span
	var walk func(n ast.Node, bold, italic bool)
	walk = func(n ast.Node, bold, italic bool) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				t := string(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					t += " "
				}
				spans = append(spans, Span{Text: t, Bold: bold, Italic: italic})
			case *ast.String:
				spans = append(spans, Span{Text: string(node.Value), Bold: bold, Italic: italic})
			case *ast.Emphasis:
				walk(node, bold || node.Level >= 2, italic || node.Level == 1)
			case *ast.AutoLink:
				spans = append(spans, Span{Text: string(node.URL(src)), Bold: bold, Italic: italic})
			default:
				walk(c, bold, italic)
			}
		}
	}
	walk(n, false, false)
	return spans
}

func linesText(n ast.Node, src []byte) string {
	lines := n.Lines()
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimSpace(sb.String())
}

// mergeSpans joins neighbours with the same style and trims the ends.
func mergeSpans(spans []Span) []Span {
	var out []Span
	for _, s := range spans {
		if s.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Bold == s.Bold && out[n-1].Italic == s.Italic {
			out[n-1].Text += s.Text
			continue
		}
		out = append(out, s)
	}
	if len(out) > 0 {
		out[0].Text = strings.TrimLeft(out[0].Text, " ")
		last := len(out) - 1
		out[last].Text = strings.TrimRight(out[last].Text, " ")
	}
	return out
}
