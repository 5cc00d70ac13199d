package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/builder"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/layout"
)

// Gesture is a highlight or erase drag in progress.
type Gesture struct {
	Rect  coords.Rect
	Erase bool
}

var eraseTint = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x60}

// DrawOverlay paints the ink, highlight regions and live gesture of one page
// onto dst, in export paint order: strokes first, then highlights. It is cheap
// enough to redraw on every pointer move.
func DrawOverlay(dst *image.RGBA, m *annotation.Model, page int, scale float64, style layout.Style, g *Gesture) {
	size := dst.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return
	}
	ink := parseOr(style.InkColor, color.NRGBA{A: 0xff}, 1)
	width := style.InkWidth * scale
	if width < 1 {
		width = 1
	}
	for _, run := range m.Strokes(page) {
		z := vector.NewRasterizer(size.X, size.Y)
		strokeRun(z, run.Points, scale, width/2)
		z.Draw(dst, dst.Bounds(), image.NewUniform(ink), image.Point{})
	}

	fill := parseOr(style.HighlightColor, color.NRGBA{R: 0xff, G: 0xff, A: 0xff}, style.HighlightOpacity)
	for _, h := range m.Highlights(page) {
		fillRect(dst, h, scale, fill)
	}
	if g != nil {
		tint := fill
		if g.Erase {
			tint = eraseTint
		}
		fillRect(dst, g.Rect, scale, tint)
	}
}

func parseOr(s string, fallback color.NRGBA, opacity float64) color.NRGBA {
	c, err := builder.ParseColor(s)
	if err != nil {
		fallback.A = uint8(math.Round(clamp01(opacity) * 255))
		return fallback
	}
	return c.RGBA(clamp01(opacity))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func fillRect(dst *image.RGBA, r coords.Rect, scale float64, c color.NRGBA) {
	r = r.Normalize()
	if r.W == 0 || r.H == 0 {
		return
	}
	size := dst.Bounds().Size()
	z := vector.NewRasterizer(size.X, size.Y)
	polygon(z, []coords.Point{
		{X: r.X * scale, Y: r.Y * scale},
		{X: (r.X + r.W) * scale, Y: r.Y * scale},
		{X: (r.X + r.W) * scale, Y: (r.Y + r.H) * scale},
		{X: r.X * scale, Y: (r.Y + r.H) * scale},
	})
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// strokeRun outlines a polyline with round joins and caps: a quad per
// segment and a disc per point.
func strokeRun(z *vector.Rasterizer, pts []coords.Point, scale, radius float64) {
	px := make([]coords.Point, len(pts))
	for i, p := range pts {
		px[i] = coords.Point{X: p.X * scale, Y: p.Y * scale}
	}
	for i, p := range px {
		disc(z, p, radius)
		if i == 0 {
			continue
		}
		q := px[i-1]
		dx, dy := p.X-q.X, p.Y-q.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*radius, dx/l*radius
		polygon(z, []coords.Point{
			{X: q.X + nx, Y: q.Y + ny},
			{X: p.X + nx, Y: p.Y + ny},
			{X: p.X - nx, Y: p.Y - ny},
			{X: q.X - nx, Y: q.Y - ny},
		})
	}
}

const discSegments = 16

func disc(z *vector.Rasterizer, c coords.Point, r float64) {
	pts := make([]coords.Point, discSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / discSegments
		pts[i] = coords.Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)}
	}
	polygon(z, pts)
}

// polygon adds a closed polygon wound clockwise in image space. Overlapping
// shapes of opposite winding would cancel out in the rasterizer's coverage
// accumulation.
func polygon(z *vector.Rasterizer, pts []coords.Point) {
	if len(pts) < 3 {
		return
	}
	var area float64
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		area += p.X*q.Y - q.X*p.Y
	}
	if area < 0 {
		rev := make([]coords.Point, len(pts))
		for i, p := range pts {
			rev[len(pts)-1-i] = p
		}
		pts = rev
	}
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
}
