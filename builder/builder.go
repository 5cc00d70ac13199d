// Package builder composes the content stream and resource dictionary that one
// page's annotation layer adds on top of the existing page content.
package builder

import (
	"fmt"
	"math"

	"github.com/wudi/pdfoverlay/contentstream"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/ir/raw"
)

// TextOptions configures text drawing. Font is a resource name returned by
// (*Page).Font.
type TextOptions struct {
	Font     string
	FontSize float64
	Color    Color
}

// PathOptions configures path drawing.
type PathOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	LineCap     contentstream.LineCap
	LineJoin    contentstream.LineJoin
	Fill        bool
	Stroke      bool
	GState      string // optional ExtGState resource name
}

// Page collects operations and the resources they reference. Resource names
// carry a prefix and skip every name passed to Reserve, so they cannot collide
// with the names already used by the page being annotated, including the
// layer of an earlier export.
type Page struct {
	prefix     string
	ops        []contentstream.Operation
	Fonts      map[string]raw.ObjectRef
	XObjects   map[string]raw.ObjectRef
	ExtGStates map[string]raw.ObjectRef
	names      map[string]map[raw.ObjectRef]string
	taken      map[string]bool
}

// NewPage starts an empty annotation layer. prefix defaults to "An".
func NewPage(prefix string) *Page {
	if prefix == "" {
		prefix = "An"
	}
	return &Page{
		prefix:     prefix,
		Fonts:      map[string]raw.ObjectRef{},
		XObjects:   map[string]raw.ObjectRef{},
		ExtGStates: map[string]raw.ObjectRef{},
		names:      map[string]map[raw.ObjectRef]string{},
		taken:      map[string]bool{},
	}
}

// Reserve marks names as in use by the page resources the layer is merged
// into.
func (p *Page) Reserve(names ...string) {
	for _, name := range names {
		p.taken[name] = true
	}
}

func (p *Page) resource(kind string, table map[string]raw.ObjectRef, ref raw.ObjectRef) string {
	byRef := p.names[kind]
	if byRef == nil {
		byRef = map[raw.ObjectRef]string{}
		p.names[kind] = byRef
	}
	if name, ok := byRef[ref]; ok {
		return name
	}
	var name string
	for n := len(byRef) + 1; ; n++ {
		name = fmt.Sprintf("%s%s%d", p.prefix, kind, n)
		if !p.taken[name] {
			break
		}
	}
	p.taken[name] = true
	byRef[ref] = name
	table[name] = ref
	return name
}

// Font registers a font object and returns its resource name.
func (p *Page) Font(ref raw.ObjectRef) string { return p.resource("F", p.Fonts, ref) }

// XObject registers an image object and returns its resource name.
func (p *Page) XObject(ref raw.ObjectRef) string { return p.resource("Im", p.XObjects, ref) }

// ExtGState registers a graphics state object and returns its resource name.
func (p *Page) ExtGState(ref raw.ObjectRef) string { return p.resource("GS", p.ExtGStates, ref) }

func (p *Page) add(ops ...contentstream.Operation) { p.ops = append(p.ops, ops...) }

// Transform concatenates m to the CTM for everything drawn afterwards.
func (p *Page) Transform(m coords.Matrix) *Page {
	if m.IsIdentity() {
		return p
	}
	p.add(contentstream.Op("cm", m[0], m[1], m[2], m[3], m[4], m[5]))
	return p
}

// DrawText shows already-encoded text with its baseline origin at (x, y).
// hex selects the <...> string form used for two-byte encodings.
func (p *Page) DrawText(encoded []byte, hex bool, x, y float64, opts TextOptions) *Page {
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	p.add(
		contentstream.Operation{Operator: "BT"},
		contentstream.Operation{Operator: "Tf", Operands: []contentstream.Operand{
			contentstream.NameOperand{Value: opts.Font}, contentstream.NumberOperand{Value: size},
		}},
		contentstream.Op("Tm", 1, 0, 0, 1, x, y),
		colorOp(opts.Color, false),
		contentstream.Operation{Operator: "Tj", Operands: []contentstream.Operand{
			contentstream.StringOperand{Value: encoded, Hex: hex},
		}},
		contentstream.Operation{Operator: "ET"},
	)
	return p
}

// DrawPath paints path with the given options inside its own q/Q pair.
func (p *Page) DrawPath(path *contentstream.Path, opts PathOptions) *Page {
	if path.Empty() {
		return p
	}
	p.add(contentstream.Operation{Operator: "q"})
	p.applyPathState(opts)
	p.add(path.Ops()...)
	p.add(contentstream.Operation{Operator: paintOperator(opts.Fill, opts.Stroke)})
	p.add(contentstream.Operation{Operator: "Q"})
	return p
}

// DrawRectangle paints an axis-aligned rectangle whose lower-left corner is (x, y).
func (p *Page) DrawRectangle(x, y, width, height float64, opts PathOptions) *Page {
	if !opts.Stroke && !opts.Fill {
		opts.Stroke = true
	}
	p.add(contentstream.Operation{Operator: "q"})
	p.applyPathState(opts)
	p.add(contentstream.Op("re", x, y, width, height))
	p.add(contentstream.Operation{Operator: paintOperator(opts.Fill, opts.Stroke)})
	p.add(contentstream.Operation{Operator: "Q"})
	return p
}

// kappa places cubic control points so four curves approximate a quarter
// ellipse each.
const kappa = 4 * (math.Sqrt2 - 1) / 3

// EllipsePath builds a closed ellipse centered at (cx, cy).
func EllipsePath(cx, cy, rx, ry float64) *contentstream.Path {
	kx, ky := rx*kappa, ry*kappa
	return new(contentstream.Path).
		MoveTo(cx+rx, cy).
		CurveTo(cx+rx, cy+ky, cx+kx, cy+ry, cx, cy+ry).
		CurveTo(cx-kx, cy+ry, cx-rx, cy+ky, cx-rx, cy).
		CurveTo(cx-rx, cy-ky, cx-kx, cy-ry, cx, cy-ry).
		CurveTo(cx+kx, cy-ry, cx+rx, cy-ky, cx+rx, cy).
		Close()
}

// DrawEllipse strokes or fills an ellipse centered at (cx, cy).
func (p *Page) DrawEllipse(cx, cy, rx, ry float64, opts PathOptions) *Page {
	if !opts.Stroke && !opts.Fill {
		opts.Stroke = true
	}
	return p.DrawPath(EllipsePath(cx, cy, rx, ry), opts)
}

// DrawImage places the named image XObject with its lower-left corner at (x, y).
func (p *Page) DrawImage(name string, x, y, width, height float64) *Page {
	p.add(
		contentstream.Operation{Operator: "q"},
		contentstream.Op("cm", width, 0, 0, height, x, y),
		contentstream.Operation{Operator: "Do", Operands: []contentstream.Operand{contentstream.NameOperand{Value: name}}},
		contentstream.Operation{Operator: "Q"},
	)
	return p
}

// Empty reports whether nothing has been drawn.
func (p *Page) Empty() bool { return len(p.ops) == 0 }

// Bytes serializes the layer wrapped in its own q/Q pair.
func (p *Page) Bytes() []byte {
	ops := make([]contentstream.Operation, 0, len(p.ops)+2)
	ops = append(ops, contentstream.Operation{Operator: "q"})
	ops = append(ops, p.ops...)
	ops = append(ops, contentstream.Operation{Operator: "Q"})
	return contentstream.Serialize(ops)
}

func (p *Page) applyPathState(opts PathOptions) {
	if opts.GState != "" {
		p.add(contentstream.Operation{Operator: "gs", Operands: []contentstream.Operand{contentstream.NameOperand{Value: opts.GState}}})
	}
	if opts.Fill {
		p.add(colorOp(opts.FillColor, false))
	}
	if opts.Stroke {
		p.add(colorOp(opts.StrokeColor, true))
		if opts.LineWidth > 0 {
			p.add(contentstream.Op("w", opts.LineWidth))
		}
		if opts.LineCap != contentstream.CapButt {
			p.add(contentstream.Op("J", float64(opts.LineCap)))
		}
		if opts.LineJoin != contentstream.JoinMiter {
			p.add(contentstream.Op("j", float64(opts.LineJoin)))
		}
	}
}

func colorOp(c Color, stroking bool) contentstream.Operation {
	op := "rg"
	if stroking {
		op = "RG"
	}
	return contentstream.Op(op, c.R, c.G, c.B)
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}
