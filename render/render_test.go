package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"testing"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/fonts"
	"github.com/wudi/pdfoverlay/internal/pdftest"
	"github.com/wudi/pdfoverlay/layout"
)

func decode(t *testing.T, pages []pdftest.Page) *document.Handle {
	t.Helper()
	doc, err := document.Decode(context.Background(), pdftest.Build(pages, pdftest.Options{}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func dark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r < 0x8000 && g < 0x8000 && b < 0x8000
}

func white(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xf000 && g > 0xf000 && b > 0xf000
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func anyDark(img image.Image, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if dark(img.At(x, y)) {
				return true
			}
		}
	}
	return false
}

func TestBlankRasterizer(t *testing.T) {
	doc := decode(t, pdftest.Pages(1, pdftest.Letter))
	img, err := BlankRasterizer{}.RasterizePage(context.Background(), doc, 1, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Size(); got != image.Pt(918, 1188) {
		t.Fatalf("size = %v", got)
	}
	if !white(img.At(10, 10)) {
		t.Fatalf("page is not white")
	}
}

func TestPixelSizeFollowsRotation(t *testing.T) {
	doc := decode(t, []pdftest.Page{{Width: 300, Height: 400, Rotate: 90}})
	if got := PixelSize(doc, 1, 1.5); got != image.Pt(600, 450) {
		t.Fatalf("size = %v", got)
	}
}

func TestCommandRasterizerMissingBinary(t *testing.T) {
	doc := decode(t, pdftest.Pages(1, pdftest.Letter))
	_, err := CommandRasterizer{Path: "/nonexistent/pdftoppm"}.RasterizePage(context.Background(), doc, 1, 1)
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, err := (CommandRasterizer{}).RasterizePage(context.Background(), doc, 2, 1); err == nil {
		t.Fatalf("expected page range error")
	}
}

func TestCommandRasterizer(t *testing.T) {
	bin, err := exec.LookPath("pdftoppm")
	if err != nil {
		t.Skip("pdftoppm not installed")
	}
	doc := decode(t, pdftest.Pages(1, pdftest.Letter))
	img, err := CommandRasterizer{Path: bin}.RasterizePage(context.Background(), doc, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Size(); got.X < 610 || got.X > 614 || got.Y < 790 || got.Y > 794 {
		t.Fatalf("size = %v", got)
	}
}

func overlay(m *annotation.Model, page int, size image.Point, scale float64, style layout.Style, g *Gesture) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: size})
	DrawOverlay(dst, m, page, scale, style, g)
	return dst
}

func TestOverlayHighlight(t *testing.T) {
	m := annotation.New(1)
	m.AddHighlight(1, coords.Rect{X: 10, Y: 10, W: 50, H: 50})
	img := overlay(m, 1, image.Pt(200, 200), 2, layout.DefaultStyle(), nil)

	c := img.RGBAAt(60, 60)
	if c.A < 120 || c.A > 135 || absDiff(c.R, c.A) > 2 || absDiff(c.G, c.A) > 2 || c.B != 0 {
		t.Fatalf("highlight pixel = %+v", c)
	}
	if c := img.RGBAAt(130, 130); c.A != 0 {
		t.Fatalf("outside pixel = %+v", c)
	}
}

func TestOverlayStroke(t *testing.T) {
	m := annotation.New(1)
	m.AddStrokePoint(1, coords.Point{X: 10, Y: 10}, annotation.Begin)
	m.AddStrokePoint(1, coords.Point{X: 50, Y: 10}, annotation.Draw)
	m.AddStrokePoint(1, coords.Point{X: 50, Y: 50}, annotation.Draw)
	style := layout.DefaultStyle()
	style.InkWidth = 4
	img := overlay(m, 1, image.Pt(100, 100), 1, style, nil)

	for _, p := range []image.Point{{30, 10}, {50, 30}, {10, 10}, {50, 10}} {
		if c := img.RGBAAt(p.X, p.Y); c.A < 200 || c.R > 10 {
			t.Fatalf("ink missing at %v: %+v", p, c)
		}
	}
	if c := img.RGBAAt(30, 30); c.A != 0 {
		t.Fatalf("ink outside the stroke: %+v", c)
	}
}

func TestOverlayGesture(t *testing.T) {
	m := annotation.New(1)
	g := &Gesture{Rect: coords.Rect{X: 40, Y: 40, W: -30, H: -30}, Erase: true}
	img := overlay(m, 1, image.Pt(50, 50), 1, layout.DefaultStyle(), g)
	if c := img.RGBAAt(20, 20); absDiff(c.A, eraseTint.A) > 1 {
		t.Fatalf("gesture pixel = %+v", c)
	}
	if c := img.RGBAAt(45, 45); c.A != 0 {
		t.Fatalf("outside pixel = %+v", c)
	}
}

func composer(t *testing.T) (*Renderer, *document.Handle, *annotation.Model) {
	t.Helper()
	doc := decode(t, pdftest.Pages(1, pdftest.Letter))
	r := New(BlankRasterizer{}, layout.NewEngine(fonts.NewRegistry()), 1, nil)
	return r, doc, annotation.New(1)
}

func TestComposeSize(t *testing.T) {
	r, doc, m := composer(t)
	r.Scale = 2
	img, err := r.Compose(context.Background(), doc, m, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Size(); got != image.Pt(1224, 1584) {
		t.Fatalf("size = %v", got)
	}
	if _, err := r.Compose(context.Background(), doc, m, 2, nil); err == nil {
		t.Fatalf("expected page range error")
	}
}

func TestComposeShape(t *testing.T) {
	r, doc, m := composer(t)
	m.AddElement(1, coords.Point{X: 100, Y: 100}, annotation.Shape{Shape: annotation.ShapeCircle})
	img, err := r.Compose(context.Background(), doc, m, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !dark(img.At(100, 130)) || !dark(img.At(130, 100)) {
		t.Fatalf("circle outline missing")
	}
	if !white(img.At(130, 130)) || !white(img.At(300, 300)) {
		t.Fatalf("circle filled or page painted")
	}
}

func TestComposeImage(t *testing.T) {
	r, doc, m := composer(t)
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.NRGBA{R: 0xff, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	m.AddElement(1, coords.Point{X: 200, Y: 200}, annotation.Image{Data: buf.Bytes(), Width: 40, Height: 20})
	img, err := r.Compose(context.Background(), doc, m, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := color.NRGBAModel.Convert(img.At(220, 210)).(color.NRGBA)
	if c.R < 200 || c.G > 60 || c.B > 60 {
		t.Fatalf("image pixel = %+v", c)
	}
	if !white(img.At(220, 230)) {
		t.Fatalf("image drawn below its box")
	}
}

func TestComposeTextAndMarks(t *testing.T) {
	r, doc, m := composer(t)
	m.AddElement(1, coords.Point{X: 100, Y: 100}, annotation.Text{Content: "Hello"})
	m.AddElement(1, coords.Point{X: 300, Y: 300}, annotation.Tick{})
	m.AddElement(1, coords.Point{X: 400, Y: 300}, annotation.Cross{})
	img, err := r.Compose(context.Background(), doc, m, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !anyDark(img, image.Rect(100, 100, 160, 118)) {
		t.Fatalf("text not drawn")
	}
	if anyDark(img, image.Rect(100, 130, 160, 160)) {
		t.Fatalf("text drawn below its baseline")
	}
	if !anyDark(img, image.Rect(300, 300, 316, 316)) {
		t.Fatalf("tick not drawn")
	}
	if !anyDark(img, image.Rect(400, 300, 416, 316)) {
		t.Fatalf("cross not drawn")
	}
}

func TestComposeDrawsOverlay(t *testing.T) {
	r, doc, m := composer(t)
	m.AddHighlight(1, coords.Rect{X: 10, Y: 10, W: 20, H: 20})
	img, err := r.Compose(context.Background(), doc, m, 1, &Gesture{Rect: coords.Rect{X: 100, Y: 100, W: 10, H: 10}})
	if err != nil {
		t.Fatal(err)
	}
	c := img.RGBAAt(20, 20)
	if c.R < 0xf0 || c.G < 0xf0 || c.B > 0x90 {
		t.Fatalf("highlight over white = %+v", c)
	}
	if g := img.RGBAAt(105, 105); g.B > 0x90 {
		t.Fatalf("gesture not drawn: %+v", g)
	}
}
