// Package render produces the editing preview of a page: the page raster
// with every annotation painted where export will put it.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	xdraw "golang.org/x/image/draw"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/builder"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/fonts"
	"github.com/wudi/pdfoverlay/layout"
	"github.com/wudi/pdfoverlay/observability"
)

// DefaultScale is the number of surface pixels per page unit.
const DefaultScale = 1.5

// canvas sizes faces in points but lays out in millimetres; page units are
// used as canvas millimetres, so face sizes are converted back.
const ptPerMM = 72 / 25.4

// Renderer composes page previews. It is safe for concurrent use.
type Renderer struct {
	Rasterizer Rasterizer
	Layout     *layout.Engine
	Scale      float64
	Logger     observability.Logger
	Tracer     observability.Tracer

	mu       sync.Mutex
	families map[string]*canvas.FontFamily
}

// New returns a renderer drawing at scale, or DefaultScale when scale is not
// positive.
func New(r Rasterizer, engine *layout.Engine, scale float64, logger observability.Logger) *Renderer {
	if r == nil {
		r = BlankRasterizer{}
	}
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Renderer{Rasterizer: r, Layout: engine, Scale: scale, Logger: logger}
}

// Compose renders page of doc with the annotations of m and, when g is not
// nil, the gesture in progress.
func (r *Renderer) Compose(ctx context.Context, doc *document.Handle, m *annotation.Model, page int, g *Gesture) (img *image.RGBA, err error) {
	tracer := r.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	ctx, span := tracer.StartSpan(ctx, observability.SpanRender)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	if page < 1 || page > doc.PageCount() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, doc.PageCount())
	}
	size := PixelSize(doc, page, r.Scale)
	base, err := r.Rasterizer.RasterizePage(ctx, doc, page, r.Scale)
	if err != nil {
		return nil, fmt.Errorf("rasterize page %d: %w", page, err)
	}
	if base.Bounds().Size() != size {
		scaled := image.NewRGBA(image.Rectangle{Max: size})
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), base, base.Bounds(), xdraw.Src, nil)
		base = scaled
	}

	frame := doc.Frame(page)
	c := canvas.New(frame.Width, frame.Height)
	cx := canvas.NewContext(c)
	cx.DrawImage(0, 0, base, canvas.DPMM(r.Scale))
	for _, el := range m.ElementsForPage(page) {
		if err := r.drawElement(cx, el, frame.Height); err != nil {
			// the preview shows what it can; export reports the failure
			observability.OrNop(r.Logger).Debug("preview skipped element",
				observability.String("id", el.ID), observability.Err(err))
		}
	}

	raster := rasterizer.Draw(c, canvas.DPMM(r.Scale), canvas.DefaultColorSpace)
	out := image.NewRGBA(image.Rectangle{Max: size})
	xdraw.Draw(out, out.Bounds(), raster, raster.Bounds().Min, xdraw.Src)
	DrawOverlay(out, m, page, r.Scale, r.Layout.Style, g)
	span.SetTag(observability.MetricPageCount, doc.PageCount())
	return out, nil
}

func (r *Renderer) drawElement(cx *canvas.Context, el annotation.Element, frameHeight float64) error {
	pl, err := r.Layout.Place(el, frameHeight)
	if err != nil {
		return err
	}
	if el.Kind() == annotation.KindImage {
		return drawImage(cx, el.Payload.(annotation.Image), pl)
	}
	c, err := builder.ParseColor(pl.Color)
	if err != nil {
		return err
	}
	col := c.RGBA(1)

	cx.Push()
	defer cx.Pop()
	switch el.Kind() {
	case annotation.KindShape:
		cx.SetFillColor(canvas.Transparent)
		cx.SetStrokeColor(col)
		cx.SetStrokeWidth(pl.LineWidth)
		cx.DrawPath(pl.Origin.X, pl.Origin.Y, canvas.Ellipse(pl.Width/2, pl.Height/2))
	case annotation.KindTick, annotation.KindCross:
		cx.SetFillColor(canvas.Transparent)
		cx.SetStrokeColor(col)
		cx.SetStrokeWidth(pl.Size * 0.12)
		cx.SetStrokeCapper(canvas.RoundCap)
		cx.SetStrokeJoiner(canvas.RoundJoin)
		cx.DrawPath(pl.Origin.X, pl.Origin.Y, markPath(el.Kind(), pl.Size))
	default:
		ff, err := r.family(pl.Face)
		if err != nil {
			return err
		}
		face := ff.Face(pl.Size*ptPerMM, col, canvas.FontRegular, canvas.FontNormal)
		cx.DrawText(pl.Origin.X, pl.Origin.Y, canvas.NewTextLine(face, pl.Text, canvas.Left))
	}
	return nil
}

// markPath is a tick or cross sized to an em box of size, with the baseline
// at y = 0.
func markPath(kind annotation.Kind, size float64) *canvas.Path {
	p := &canvas.Path{}
	if kind == annotation.KindTick {
		p.MoveTo(0.1*size, 0.45*size)
		p.LineTo(0.38*size, 0.15*size)
		p.LineTo(0.9*size, 0.85*size)
		return p
	}
	p.MoveTo(0.15*size, 0.1*size)
	p.LineTo(0.85*size, 0.8*size)
	p.MoveTo(0.15*size, 0.8*size)
	p.LineTo(0.85*size, 0.1*size)
	return p
}

func drawImage(cx *canvas.Context, payload annotation.Image, pl layout.Placement) error {
	img, _, err := image.Decode(bytes.NewReader(payload.Data))
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("image has no pixels")
	}
	cx.Push()
	defer cx.Pop()
	cx.Translate(pl.Origin.X, pl.Origin.Y)
	cx.Scale(pl.Width/float64(b.Dx()), pl.Height/float64(b.Dy()))
	cx.DrawImage(0, 0, img, canvas.DPMM(1.0))
	return nil
}

// family loads the program behind face into a canvas font family once per
// face key.
func (r *Renderer) family(face *fonts.Face) (*canvas.FontFamily, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ff, ok := r.families[face.Key]; ok {
		return ff, nil
	}
	data := face.Data()
	if len(data) == 0 {
		return nil, fmt.Errorf("font %s has no outlines to preview", face.Name)
	}
	ff := canvas.NewFontFamily(face.Key)
	if err := ff.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("load font %s: %w", face.Name, err)
	}
	if r.families == nil {
		r.families = map[string]*canvas.FontFamily{}
	}
	r.families[face.Key] = ff
	return ff, nil
}
