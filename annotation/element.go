// Package annotation holds the per-page annotation state of an editing
// session: placed elements, freehand strokes and highlight regions.
package annotation

import (
	"fmt"

	"github.com/wudi/pdfoverlay/coords"
)

// Kind enumerates the element variants.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindSignature
	KindTick
	KindCross
	KindShape
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindSignature:
		return "signature"
	case KindTick:
		return "tick"
	case KindCross:
		return "cross"
	case KindShape:
		return "shape"
	case KindImage:
		return "image"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Payload is the variant-specific part of an element. The set of
// implementations is closed.
type Payload interface {
	Kind() Kind
	isPayload()
}

// TextLike is implemented by the variants whose content the user types.
type TextLike interface {
	Payload
	Text() string
	WithText(content string) Payload
	FontSize() float64
}

// TextStyle is the font selection for typed text.
type TextStyle struct {
	Family string  `json:"family" yaml:"family"`
	Bold   bool    `json:"bold" yaml:"bold"`
	Size   float64 `json:"size" yaml:"size"`
	Color  string  `json:"color" yaml:"color"`
}

type Text struct {
	Content string
	Style   TextStyle
}

type Date struct {
	Content string
	Style   TextStyle
}

// Signature is drawn with the decorative signature face; only size and color
// are selectable.
type Signature struct {
	Content string
	Size    float64
	Color   string
}

// Mark is the payload of the tick and cross stamps.
type Mark struct {
	Size  float64
	Color string
}

type Tick struct{ Mark }
type Cross struct{ Mark }

type ShapeKind int

const (
	ShapeCircle ShapeKind = iota
)

func (s ShapeKind) String() string {
	if s == ShapeCircle {
		return "circle"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(s))
}

type Shape struct {
	Shape       ShapeKind
	Width       float64
	Height      float64
	StrokeColor string
	LineWidth   float64
}

// Image holds the raw bytes as uploaded; the format is sniffed at export.
type Image struct {
	Data   []byte
	Width  float64
	Height float64
}

func (Text) Kind() Kind      { return KindText }
func (Date) Kind() Kind      { return KindDate }
func (Signature) Kind() Kind { return KindSignature }
func (Tick) Kind() Kind      { return KindTick }
func (Cross) Kind() Kind     { return KindCross }
func (Shape) Kind() Kind     { return KindShape }
func (Image) Kind() Kind     { return KindImage }

func (Text) isPayload()      {}
func (Date) isPayload()      {}
func (Signature) isPayload() {}
func (Tick) isPayload()      {}
func (Cross) isPayload()     {}
func (Shape) isPayload()     {}
func (Image) isPayload()     {}

func (t Text) Text() string              { return t.Content }
func (t Text) WithText(c string) Payload { t.Content = c; return t }
func (t Text) FontSize() float64         { return t.Style.Size }

func (d Date) Text() string              { return d.Content }
func (d Date) WithText(c string) Payload { d.Content = c; return d }
func (d Date) FontSize() float64         { return d.Style.Size }

func (s Signature) Text() string              { return s.Content }
func (s Signature) WithText(c string) Payload { s.Content = c; return s }
func (s Signature) FontSize() float64         { return s.Size }

// Element is a placed annotation. Pos is the viewport position (origin
// top-left) of the element's top-left corner; it is never clamped.
type Element struct {
	ID      string
	Page    int
	Pos     coords.Point
	Payload Payload
}

func (e Element) Kind() Kind { return e.Payload.Kind() }
