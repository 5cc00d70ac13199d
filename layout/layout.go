// Package layout decides where each annotation element is drawn. The same
// placement feeds the export serializer, the preview renderer and hit
// testing, so what the user sees while editing is what ends up in the file.
package layout

import (
	"fmt"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/builder"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/fonts"
)

// Engine resolves faces and sizes for elements and computes their placement.
type Engine struct {
	fonts *fonts.Registry

	// Configuration
	DefaultFamily   string
	DefaultFontSize float64
	MinFontSize     float64
	MaxFontSize     float64
	MarkSize        float64
	TickText        string
	CrossText       string
	CircleWidth     float64
	CircleHeight    float64
	CircleLineWidth float64
	Style           Style
}

// Style is the look of freehand ink and highlight regions.
type Style struct {
	InkColor         string
	InkWidth         float64
	HighlightColor   string
	HighlightOpacity float64
}

// DefaultStyle is black two-unit ink and half-transparent yellow highlights.
func DefaultStyle() Style {
	return Style{InkColor: "black", InkWidth: 2, HighlightColor: "#FFFF00", HighlightOpacity: 0.5}
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithDefaultFontSize sets the size used when an element carries none.
func WithDefaultFontSize(size float64) Option {
	return func(e *Engine) {
		e.DefaultFontSize = size
	}
}

// WithFontSizeRange sets the bounds text sizes are clamped to.
func WithFontSizeRange(min, max float64) Option {
	return func(e *Engine) {
		e.MinFontSize = min
		e.MaxFontSize = max
	}
}

// WithMarks sets the strings drawn for tick and cross stamps.
func WithMarks(tick, cross string) Option {
	return func(e *Engine) {
		if tick != "" {
			e.TickText = tick
		}
		if cross != "" {
			e.CrossText = cross
		}
	}
}

// WithCircle sets the default circle box and line width.
func WithCircle(width, height, lineWidth float64) Option {
	return func(e *Engine) {
		e.CircleWidth = width
		e.CircleHeight = height
		e.CircleLineWidth = lineWidth
	}
}

// WithStyle sets the ink and highlight look. Zero fields keep their defaults.
func WithStyle(s Style) Option {
	return func(e *Engine) {
		if s.InkColor != "" {
			e.Style.InkColor = s.InkColor
		}
		if s.InkWidth > 0 {
			e.Style.InkWidth = s.InkWidth
		}
		if s.HighlightColor != "" {
			e.Style.HighlightColor = s.HighlightColor
		}
		if s.HighlightOpacity > 0 {
			e.Style.HighlightOpacity = s.HighlightOpacity
		}
	}
}

// NewEngine creates a placement engine backed by reg.
func NewEngine(reg *fonts.Registry, opts ...Option) *Engine {
	e := &Engine{
		fonts:           reg,
		DefaultFamily:   "Arial",
		DefaultFontSize: 16,
		MinFontSize:     8,
		MaxFontSize:     72,
		MarkSize:        16,
		TickText:        "✓",
		CrossText:       "✗",
		CircleWidth:     60,
		CircleHeight:    60,
		CircleLineWidth: 2,
		Style:           DefaultStyle(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Placement is where and how one element is drawn.
//
// Origin is in the page's display frame (origin bottom-left, y up): the
// baseline start for text-like variants and marks, the lower-left corner for
// images and the center for circles. Bounds is the element's box in viewport
// space (origin top-left), used for hit testing.
type Placement struct {
	Kind      annotation.Kind
	Face      *fonts.Face
	Text      string
	Size      float64
	Color     string
	Width     float64
	Height    float64
	LineWidth float64
	Origin    coords.Point
	Bounds    coords.Rect
}

// VerticalOffset is the distance between an element's viewport anchor and
// its drawing origin, measured downwards.
func (p Placement) VerticalOffset() float64 {
	switch p.Kind {
	case annotation.KindShape:
		return p.Height / 2
	case annotation.KindImage:
		return p.Height
	default:
		return p.Size
	}
}

func (e *Engine) clampSize(size float64) float64 {
	switch {
	case size <= 0:
		return e.DefaultFontSize
	case size < e.MinFontSize:
		return e.MinFontSize
	case size > e.MaxFontSize:
		return e.MaxFontSize
	}
	return size
}

func orBlack(c string) string {
	if c == "" {
		return "black"
	}
	return c
}

// Face returns the face a payload's text is drawn with, or nil for variants
// without text.
func (e *Engine) Face(p annotation.Payload) (*fonts.Face, error) {
	switch v := p.(type) {
	case annotation.Text:
		return e.styleFace(v.Style)
	case annotation.Date:
		return e.styleFace(v.Style)
	case annotation.Signature:
		return e.fonts.Signature()
	case annotation.Tick, annotation.Cross:
		return e.fonts.Dingbats()
	case annotation.Shape, annotation.Image:
		return nil, nil
	}
	panic(fmt.Sprintf("layout: unhandled payload %T", p))
}

func (e *Engine) styleFace(s annotation.TextStyle) (*fonts.Face, error) {
	family := s.Family
	if family == "" {
		family = e.DefaultFamily
	}
	return e.fonts.Resolve(family, s.Bold)
}

// Place computes the placement of el on a page whose display frame is
// frameHeight units tall.
func (e *Engine) Place(el annotation.Element, frameHeight float64) (Placement, error) {
	p := Placement{Kind: el.Kind()}
	face, err := e.Face(el.Payload)
	if err != nil {
		return Placement{}, err
	}
	p.Face = face

	switch v := el.Payload.(type) {
	case annotation.Text:
		p.Text, p.Size, p.Color = v.Content, e.clampSize(v.Style.Size), orBlack(v.Style.Color)
	case annotation.Date:
		p.Text, p.Size, p.Color = v.Content, e.clampSize(v.Style.Size), orBlack(v.Style.Color)
	case annotation.Signature:
		p.Text, p.Size, p.Color = v.Content, e.clampSize(v.Size), orBlack(v.Color)
	case annotation.Tick:
		p.Text, p.Size, p.Color = e.TickText, e.markSize(v.Mark), orBlack(v.Color)
	case annotation.Cross:
		p.Text, p.Size, p.Color = e.CrossText, e.markSize(v.Mark), orBlack(v.Color)
	case annotation.Shape:
		p.Width, p.Height = v.Width, v.Height
		if p.Width <= 0 {
			p.Width = e.CircleWidth
		}
		if p.Height <= 0 {
			p.Height = e.CircleHeight
		}
		p.LineWidth = v.LineWidth
		if p.LineWidth <= 0 {
			p.LineWidth = e.CircleLineWidth
		}
		p.Color = orBlack(v.StrokeColor)
	case annotation.Image:
		p.Width, p.Height, err = imageSize(v)
		if err != nil {
			return Placement{}, err
		}
	}

	if p.Face != nil {
		p.Width = p.Face.Width(p.Text, p.Size)
		p.Height = p.Size
	}

	docY := frameHeight - el.Pos.Y
	switch p.Kind {
	case annotation.KindShape:
		p.Origin = coords.Point{X: el.Pos.X + p.Width/2, Y: docY - p.Height/2}
	default:
		p.Origin = coords.Point{X: el.Pos.X, Y: docY - p.VerticalOffset()}
	}
	p.Bounds = coords.Rect{X: el.Pos.X, Y: el.Pos.Y, W: p.Width, H: p.Height}
	return p, nil
}

func (e *Engine) markSize(m annotation.Mark) float64 {
	if m.Size <= 0 {
		return e.MarkSize
	}
	return e.clampSize(m.Size)
}

// imageSize fills a missing dimension from the image's natural size, keeping
// its aspect ratio when only one side is given.
func imageSize(img annotation.Image) (w, h float64, err error) {
	w, h = img.Width, img.Height
	if w > 0 && h > 0 {
		return w, h, nil
	}
	pw, ph, _, err := builder.ImageSize(img.Data)
	if err != nil {
		return 0, 0, err
	}
	if pw == 0 || ph == 0 {
		return 0, 0, fmt.Errorf("image has no pixels")
	}
	switch {
	case w > 0:
		h = w * float64(ph) / float64(pw)
	case h > 0:
		w = h * float64(pw) / float64(ph)
	default:
		w, h = float64(pw), float64(ph)
	}
	return w, h, nil
}

// HitTest returns the top-most element whose box contains pt. Elements are
// expected in paint order.
func (e *Engine) HitTest(elements []annotation.Element, pt coords.Point) (annotation.Element, bool) {
	for i := len(elements) - 1; i >= 0; i-- {
		p, err := e.Place(elements[i], 0)
		if err != nil {
			continue
		}
		if p.Bounds.ContainsPoint(pt) {
			return elements[i], true
		}
	}
	return annotation.Element{}, false
}

// HighlightRect converts a viewport highlight to the display frame:
// (x, H - y - h, w, h).
func HighlightRect(r coords.Rect, frameHeight float64) coords.Rect {
	r = r.Normalize()
	return coords.Rect{X: r.X, Y: frameHeight - r.Y - r.H, W: r.W, H: r.H}
}
