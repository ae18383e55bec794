package render

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
)

//go:embed fonts/*.ttf
var bundledFonts embed.FS

const (
	baseFamily     = "DejaVu"
	fallbackFamily = "Fallback"
)

var bundledStyles = map[string]string{
	"":   "fonts/DejaVuSansCondensed.ttf",
	"B":  "fonts/DejaVuSansCondensed-Bold.ttf",
	"I":  "fonts/DejaVuSansCondensed-Oblique.ttf",
	"BI": "fonts/DejaVuSansCondensed-BoldOblique.ttf",
}

// face is a font family together with the BMP code points it has glyphs for.
type face struct {
	family string
	styles map[string][]byte
	glyphs map[uint16]uint16
}

func (f face) has(r rune) bool {
	if r < 0 || r > 0xFFFF {
		return false
	}
	_, ok := f.glyphs[uint16(r)]
	return ok
}

func bundledFace() (face, error) {
	styles := make(map[string][]byte, len(bundledStyles))
	for style, name := range bundledStyles {
		data, err := bundledFonts.ReadFile(name)
		if err != nil {
			return face{}, fmt.Errorf("read bundled font: %w", err)
		}
		styles[style] = data
	}
	glyphs, err := glyphCoverage(styles[""])
	if err != nil {
		return face{}, err
	}
	return face{family: baseFamily, styles: styles, glyphs: glyphs}, nil
}

// fileFace loads a single TrueType file and uses it for every style.
func fileFace(family, path string) (face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return face{}, fmt.Errorf("read font %s: %w", path, err)
	}
	glyphs, err := glyphCoverage(data)
	if err != nil {
		return face{}, fmt.Errorf("font %s: %w", path, err)
	}
	styles := make(map[string][]byte, len(bundledStyles))
	for style := range bundledStyles {
		styles[style] = data
	}
	return face{family: family, styles: styles, glyphs: glyphs}, nil
}

// glyphCoverage reads the Unicode cmap of a TrueType font. fpdf only parses
// font metrics from disk, so the bytes are staged in a temp file.
func glyphCoverage(data []byte) (map[uint16]uint16, error) {
	f, err := os.CreateTemp("", "values-font-*.ttf")
	if err != nil {
		return nil, fmt.Errorf("stage font: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stage font: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("stage font: %w", err)
	}
	ttf, err := fpdf.TtfParse(f.Name())
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	if len(ttf.Chars) == 0 {
		return nil, fmt.Errorf("parse font: no unicode glyphs")
	}
	return ttf.Chars, nil
}

// fontSet draws each character with the first face that has a glyph for it.
type fontSet struct {
	faces []face
}

func (s *fontSet) register(pdf *fpdf.Fpdf) {
	for _, f := range s.faces {
		for style, data := range f.styles {
			pdf.AddUTF8FontFromBytes(f.family, style, data)
		}
	}
}

type run struct {
	family string
	text   string
}

// split cuts text into single-family runs. Characters no face can draw are
// left out and counted. Control characters stay in the current run.
func (s *fontSet) split(text string) (runs []run, dropped int) {
	var (
		family string
		b      strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			runs = append(runs, run{family: family, text: b.String()})
			b.Reset()
		}
	}
	for _, r := range text {
		want := ""
		if r < 0x20 {
			want = family
			if want == "" {
				want = s.faces[0].family
			}
		} else {
			for _, f := range s.faces {
				if f.has(r) {
					want = f.family
					break
				}
			}
		}
		if want == "" {
			dropped++
			continue
		}
		if want != family {
			flush()
			family = want
		}
		b.WriteRune(r)
	}
	flush()
	return runs, dropped
}
