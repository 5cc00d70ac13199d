package contentstream

import "github.com/wudi/pdfoverlay/coords"

// LineCap is the operand of J.
type LineCap int

const (
	CapButt LineCap = iota
	CapRound
	CapSquare
)

// LineJoin is the operand of j.
type LineJoin int

const (
	JoinMiter LineJoin = iota
	JoinRound
	JoinBevel
)

// SegmentKind is the path construction operator of a Segment.
type SegmentKind int

const (
	MoveTo SegmentKind = iota
	LineTo
	CurveTo
	ClosePath
)

// Segment is one path construction step. For CurveTo, Pts holds both
// control points and then the end point; MoveTo and LineTo hold the end
// point only; ClosePath holds nothing.
type Segment struct {
	Kind SegmentKind
	Pts  []coords.Point
}

// Path is a sequence of segments in user space, built with the chaining
// methods below.
type Path struct {
	Segments []Segment
}

func (p *Path) MoveTo(x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Kind: MoveTo, Pts: []coords.Point{{X: x, Y: y}}})
	return p
}

func (p *Path) LineTo(x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Kind: LineTo, Pts: []coords.Point{{X: x, Y: y}}})
	return p
}

func (p *Path) CurveTo(x1, y1, x2, y2, x3, y3 float64) *Path {
	p.Segments = append(p.Segments, Segment{Kind: CurveTo, Pts: []coords.Point{{X: x1, Y: y1}, {X: x2, Y: y2}, {X: x3, Y: y3}}})
	return p
}

func (p *Path) Close() *Path {
	p.Segments = append(p.Segments, Segment{Kind: ClosePath})
	return p
}

// Empty reports whether the path has no segments.
func (p *Path) Empty() bool { return p == nil || len(p.Segments) == 0 }

// Drawn counts the segments that put ink down: everything but moves and
// closes.
func (p *Path) Drawn() int {
	n := 0
	for _, s := range p.Segments {
		if s.Kind == LineTo || s.Kind == CurveTo {
			n++
		}
	}
	return n
}

// Ops returns the m, l, c and h operations that construct the path.
func (p *Path) Ops() []Operation {
	ops := make([]Operation, 0, len(p.Segments))
	for _, s := range p.Segments {
		switch s.Kind {
		case MoveTo:
			ops = append(ops, Op("m", s.Pts[0].X, s.Pts[0].Y))
		case LineTo:
			ops = append(ops, Op("l", s.Pts[0].X, s.Pts[0].Y))
		case CurveTo:
			ops = append(ops, Op("c", s.Pts[0].X, s.Pts[0].Y, s.Pts[1].X, s.Pts[1].Y, s.Pts[2].X, s.Pts[2].Y))
		case ClosePath:
			ops = append(ops, Operation{Operator: "h"})
		}
	}
	return ops
}
