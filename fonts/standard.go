package fonts

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdfoverlay/ir/raw"
)

type encoder interface {
	encode(text string) ([]byte, error)
}

// winAnsi encodes through Windows-1252, which is what /WinAnsiEncoding means
// for the standard Latin faces.
type winAnsi struct{}

func (winAnsi) encode(text string) ([]byte, error) {
	out, err := charmap.Windows1252.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("text %q is not representable in WinAnsiEncoding", text)
	}
	return out, nil
}

// dingbats maps the Unicode Dingbats block onto the ZapfDingbats built-in
// encoding, where U+2701..U+275E sit at 0x21..0x7E.
type dingbats struct{}

func (dingbats) encode(text string) ([]byte, error) {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		switch {
		case r == ' ':
			out = append(out, ' ')
		case r >= 0x2701 && r <= 0x275E:
			out = append(out, byte(r-0x2700+0x20))
		default:
			return nil, fmt.Errorf("rune %q is not in ZapfDingbats", r)
		}
	}
	return out, nil
}

type standardFamily struct {
	regular, bold string
}

var (
	helvetica = standardFamily{"Helvetica", "Helvetica-Bold"}
	courier   = standardFamily{"Courier", "Courier-Bold"}
	times     = standardFamily{"Times-Roman", "Times-Bold"}
)

// standardFamilies maps the family names offered in the text prompt to the
// PDF standard faces closest to them.
var standardFamilies = map[string]standardFamily{
	"":                helvetica,
	"arial":           helvetica,
	"helvetica":       helvetica,
	"verdana":         helvetica,
	"sans-serif":      helvetica,
	"courier":         courier,
	"courier new":     courier,
	"monospace":       courier,
	"georgia":         times,
	"times":           times,
	"times new roman": times,
	"serif":           times,
}

func normalizeFamily(family string) string {
	return strings.ToLower(strings.TrimSpace(family))
}

// FontObjects builds the objects for face. fontRef is the reference the page
// resources point at; alloc hands out references for any extra objects.
// used is the glyph set accumulated for an embedded face and is ignored for
// standard faces.
func FontObjects(face *Face, fontRef raw.ObjectRef, alloc func() raw.ObjectRef, used *GlyphSet) (map[raw.ObjectRef]raw.Object, error) {
	if face.Kind == Standard {
		d := raw.Dict()
		d.Set("Type", raw.NameLiteral("Font"))
		d.Set("Subtype", raw.NameLiteral("Type1"))
		d.Set("BaseFont", raw.NameLiteral(face.Name))
		if _, ok := face.enc.(winAnsi); ok {
			d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
		}
		return map[raw.ObjectRef]raw.Object{fontRef: d}, nil
	}
	return trueTypeObjects(face, fontRef, alloc, used)
}
