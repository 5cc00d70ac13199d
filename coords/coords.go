// Package coords holds the affine and rectangle math shared by the viewport,
// the page preview and the exported PDF content.
package coords

import "math"

// Matrix is a PDF affine matrix [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{m[0]*o[0] + m[1]*o[2], m[0]*o[1] + m[1]*o[3], m[2]*o[0] + m[3]*o[2], m[2]*o[1] + m[3]*o[3], m[4]*o[0] + m[5]*o[2] + o[4], m[4]*o[1] + m[5]*o[3] + o[5]}
}
func (m Matrix) IsIdentity() bool { return m == Identity() }

type Point struct{ X, Y float64 }

func (p Point) Add(dx, dy float64) Point { return Point{X: p.X + dx, Y: p.Y + dy} }
func (p Point) Sub(o Point) Point        { return Point{X: p.X - o.X, Y: p.Y - o.Y} }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Rect is an axis-aligned rectangle given by an origin and a size. In viewport
// space the origin is the top-left corner.
type Rect struct{ X, Y, W, H float64 }

// RectFromPoints spans the rectangle between an anchor and a release point.
func RectFromPoints(a, b Point) Rect { return Rect{X: a.X, Y: a.Y, W: b.X - a.X, H: b.Y - a.Y}.Normalize() }

// Normalize flips negative extents so W and H are non-negative.
func (r Rect) Normalize() Rect {
	if r.W < 0 {
		r.X, r.W = r.X+r.W, -r.W
	}
	if r.H < 0 {
		r.Y, r.H = r.Y+r.H, -r.H
	}
	return r
}

// Contains reports whether o lies entirely inside r. Shared edges count as inside.
func (r Rect) Contains(o Rect) bool {
	r, o = r.Normalize(), o.Normalize()
	return o.X >= r.X && o.Y >= r.Y && o.X+o.W <= r.X+r.W && o.Y+o.H <= r.Y+r.H
}

func (r Rect) ContainsPoint(p Point) bool {
	r = r.Normalize()
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Box is a PDF rectangle in lower-left / upper-right form.
type Box struct{ LLX, LLY, URX, URY float64 }

func (b Box) Width() float64  { return math.Abs(b.URX - b.LLX) }
func (b Box) Height() float64 { return math.Abs(b.URY - b.LLY) }

// Frame describes a page as the user sees it: the displayed size after /Rotate
// and the matrix that maps the displayed frame (origin bottom-left, y up) into
// PDF user space.
type Frame struct {
	Width, Height float64
	ToUser        Matrix
}

// NewFrame builds the display frame for a page with the given media box and
// /Rotate value. Rotation is normalized to one of 0, 90, 180, 270.
func NewFrame(media Box, rotate int) Frame {
	llx, lly := math.Min(media.LLX, media.URX), math.Min(media.LLY, media.URY)
	w, h := media.Width(), media.Height()
	switch NormalizeRotation(rotate) {
	case 90:
		return Frame{Width: h, Height: w, ToUser: Matrix{0, 1, -1, 0, llx + w, lly}}
	case 180:
		return Frame{Width: w, Height: h, ToUser: Matrix{-1, 0, 0, -1, llx + w, lly + h}}
	case 270:
		return Frame{Width: h, Height: w, ToUser: Matrix{0, -1, 1, 0, llx, lly + h}}
	default:
		return Frame{Width: w, Height: h, ToUser: Translate(llx, lly)}
	}
}

// NormalizeRotation folds any multiple of 90 into [0, 360).
func NormalizeRotation(rot int) int {
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	return rot - rot%90
}

// ToDocument maps a viewport point (origin top-left, y down) into the display
// frame (origin bottom-left, y up).
func (f Frame) ToDocument(p Point) Point { return Point{X: p.X, Y: f.Height - p.Y} }
