// Package fonts resolves the faces annotations are drawn with, encodes text for
// them and builds the font objects an export embeds.
package fonts

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	gotext "github.com/go-text/typesetting/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Kind distinguishes the PDF standard faces from embedded TrueType faces.
type Kind int

const (
	Standard Kind = iota
	TrueType
)

// Face is a resolved font face.
type Face struct {
	// Key identifies the face in per-export caches (family and weight).
	Key  string
	Name string // PDF BaseFont
	Kind Kind

	data    []byte
	sfnt    *sfnt.Font
	shaping *gotext.Face
	upem    sfnt.Units

	// proxy is the TrueType face used to measure and preview a standard face.
	proxy *Face
	enc   encoder

	Ascent, Descent, CapHeight float64
	ItalicAngle                float64
	BBox                       [4]float64
}

// Data returns the TrueType program backing the face, or the proxy's for a
// standard face. Callers must not modify it.
func (f *Face) Data() []byte {
	if f.Kind == Standard && f.proxy != nil {
		return f.proxy.data
	}
	return f.data
}

// LoadTrueType parses a TrueType/OpenType font and extracts the metrics needed
// for a Type0 Identity-H embedding. The full font is embedded (no subsetting).
func LoadTrueType(key string, data []byte) (*Face, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	shaped, err := gotext.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load shaping face: %w", err)
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	baseName := strings.TrimSpace(key)
	if ps, _ := font.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		baseName = ps
	}
	if baseName == "" {
		baseName = "CustomTT"
	}

	f := &Face{
		Key:     key,
		Name:    strings.ReplaceAll(baseName, " ", ""),
		Kind:    TrueType,
		data:    data,
		sfnt:    font,
		shaping: shaped,
		upem:    unitsPerEm,
	}
	metrics, err := font.Metrics(buf, ppem, xfont.HintingNone)
	if err == nil {
		f.Ascent = scaleFixed(metrics.Ascent, unitsPerEm)
		f.Descent = -scaleFixed(metrics.Descent, unitsPerEm)
		f.CapHeight = scaleFixed(metrics.CapHeight, unitsPerEm)
		if f.CapHeight == 0 {
			f.CapHeight = f.Ascent
		}
	}
	if bounds, err := font.Bounds(buf, ppem, xfont.HintingNone); err == nil {
		// sfnt bounds are y-down
		f.BBox = [4]float64{
			scaleFixed(bounds.Min.X, unitsPerEm),
			-scaleFixed(bounds.Max.Y, unitsPerEm),
			scaleFixed(bounds.Max.X, unitsPerEm),
			-scaleFixed(bounds.Min.Y, unitsPerEm),
		}
	}
	if post := font.PostTable(); post != nil {
		f.ItalicAngle = post.ItalicAngle
	}
	return f, nil
}

// GlyphWidth returns the advance of gid in 1/1000 em.
func (f *Face) GlyphWidth(gid int) int {
	if f.sfnt == nil {
		return 0
	}
	var buf sfnt.Buffer
	adv, err := f.sfnt.GlyphAdvance(&buf, sfnt.GlyphIndex(gid), fixed.Int26_6(f.upem<<6), xfont.HintingNone)
	if err != nil {
		return 0
	}
	return int(math.Round(scaleFixed(adv, f.upem)))
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}

// Width measures text set at size in user units.
func (f *Face) Width(text string, size float64) float64 {
	if f.Kind == Standard {
		if f.proxy == nil {
			return float64(len([]rune(text))) * size * 0.5
		}
		return f.proxy.Width(text, size)
	}
	var total float64
	for _, g := range ShapeText(text, f) {
		total += g.XAdvance
	}
	return total / 1000 * size
}

// GlyphSet accumulates the glyphs drawn with one embedded face during an
// export so widths and the ToUnicode map can be written once at the end.
type GlyphSet struct {
	Widths map[int]int
	Runes  map[int][]rune
}

func NewGlyphSet() *GlyphSet {
	return &GlyphSet{Widths: map[int]int{}, Runes: map[int][]rune{}}
}

// Encode converts text to the byte string shown with Tj. hex reports whether
// the two-byte Identity-H form is used. used may be nil for standard faces.
func (f *Face) Encode(text string, used *GlyphSet) (data []byte, hex bool, err error) {
	if f.Kind == Standard {
		data, err := f.enc.encode(text)
		if err != nil {
			return nil, false, fmt.Errorf("font %s: %w", f.Name, err)
		}
		return data, false, nil
	}
	glyphs := ShapeText(text, f)
	runes := []rune(text)
	out := make([]byte, 0, 2*len(glyphs))
	for i, g := range glyphs {
		if g.ID == 0 && len(runes) > 0 {
			return nil, true, fmt.Errorf("font %s has no glyph for %q", f.Name, runeAt(runes, g.Cluster))
		}
		out = append(out, byte(g.ID>>8), byte(g.ID))
		if used == nil {
			continue
		}
		if _, ok := used.Widths[g.ID]; !ok {
			used.Widths[g.ID] = f.GlyphWidth(g.ID)
		}
		if _, ok := used.Runes[g.ID]; !ok && (i == 0 || glyphs[i-1].Cluster != g.Cluster) {
			end := g.Cluster + g.RuneCount
			if end > len(runes) {
				end = len(runes)
			}
			if g.Cluster < end {
				used.Runes[g.ID] = append([]rune(nil), runes[g.Cluster:end]...)
			}
		}
	}
	return out, true, nil
}

func runeAt(runes []rune, i int) string {
	if i >= 0 && i < len(runes) {
		return string(runes[i])
	}
	return "?"
}
