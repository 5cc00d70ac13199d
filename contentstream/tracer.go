package contentstream

import (
	"fmt"

	"github.com/wudi/pdfoverlay/coords"
)

// MarkKind classifies a traced drawing operation.
type MarkKind int

const (
	MarkText MarkKind = iota
	MarkRect
	MarkImage
	MarkMove
	MarkCurve
)

func (k MarkKind) String() string {
	switch k {
	case MarkText:
		return "text"
	case MarkRect:
		return "rect"
	case MarkImage:
		return "image"
	case MarkMove:
		return "move"
	case MarkCurve:
		return "curve"
	}
	return fmt.Sprintf("MarkKind(%d)", int(k))
}

// Mark is the user-space origin of one drawing operation. For rectangles and
// images Size holds the transformed extent.
type Mark struct {
	OpIndex  int
	Kind     MarkKind
	At       coords.Point
	Size     coords.Point
	Resource string  // font or XObject name
	FontSize float64 // text only
}

type graphicsState struct {
	ctm   coords.Matrix
	stack []coords.Matrix
}

func (gs *graphicsState) save() { gs.stack = append(gs.stack, gs.ctm) }
func (gs *graphicsState) restore() error {
	n := len(gs.stack)
	if n == 0 {
		return fmt.Errorf("state stack empty")
	}
	gs.ctm = gs.stack[n-1]
	gs.stack = gs.stack[:n-1]
	return nil
}

// Trace replays q/Q/cm and text positioning and reports where text, rectangles,
// images and path starts land in user space.
func Trace(ops []Operation) ([]Mark, error) {
	gs := &graphicsState{ctm: coords.Identity()}
	tm, tlm := coords.Identity(), coords.Identity()
	var font string
	var fontSize float64
	var marks []Mark

	for i, op := range ops {
		n := op.Numbers()
		switch op.Operator {
		case "q":
			gs.save()
		case "Q":
			if err := gs.restore(); err != nil {
				return marks, fmt.Errorf("op %d: %w", i, err)
			}
		case "cm":
			if len(n) == 6 {
				gs.ctm = toMatrix(n).Multiply(gs.ctm)
			}
		case "BT":
			tm, tlm = coords.Identity(), coords.Identity()
		case "Tf":
			if len(op.Operands) == 2 {
				if name, ok := op.Operands[0].(NameOperand); ok {
					font = name.Value
				}
				if len(n) == 1 {
					fontSize = n[0]
				}
			}
		case "Tm":
			if len(n) == 6 {
				tlm = toMatrix(n)
				tm = tlm
			}
		case "Td":
			if len(n) == 2 {
				tlm = coords.Translate(n[0], n[1]).Multiply(tlm)
				tm = tlm
			}
		case "Tj", "TJ":
			at := tm.Multiply(gs.ctm).Transform(coords.Point{})
			marks = append(marks, Mark{OpIndex: i, Kind: MarkText, At: at, Resource: font, FontSize: fontSize})
		case "re":
			if len(n) == 4 {
				p0 := gs.ctm.Transform(coords.Point{X: n[0], Y: n[1]})
				p1 := gs.ctm.Transform(coords.Point{X: n[0] + n[2], Y: n[1] + n[3]})
				marks = append(marks, Mark{OpIndex: i, Kind: MarkRect, At: p0, Size: p1.Sub(p0)})
			}
		case "m":
			if len(n) == 2 {
				marks = append(marks, Mark{OpIndex: i, Kind: MarkMove, At: gs.ctm.Transform(coords.Point{X: n[0], Y: n[1]})})
			}
		case "c":
			if len(n) == 6 {
				marks = append(marks, Mark{OpIndex: i, Kind: MarkCurve, At: gs.ctm.Transform(coords.Point{X: n[4], Y: n[5]})})
			}
		case "Do":
			name := ""
			if len(op.Operands) == 1 {
				if nm, ok := op.Operands[0].(NameOperand); ok {
					name = nm.Value
				}
			}
			p0 := gs.ctm.Transform(coords.Point{})
			p1 := gs.ctm.Transform(coords.Point{X: 1, Y: 1})
			marks = append(marks, Mark{OpIndex: i, Kind: MarkImage, At: p0, Size: p1.Sub(p0), Resource: name})
		}
	}
	return marks, nil
}

func toMatrix(n []float64) coords.Matrix { return coords.Matrix{n[0], n[1], n[2], n[3], n[4], n[5]} }
