// Package export bakes an annotation model into a PDF as an incremental
// update of the source document.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/builder"
	"github.com/wudi/pdfoverlay/contentstream"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/fonts"
	"github.com/wudi/pdfoverlay/ir/raw"
	"github.com/wudi/pdfoverlay/layout"
	"github.com/wudi/pdfoverlay/observability"
	"github.com/wudi/pdfoverlay/writer"
)

// ResourcePrefix prefixes every resource name the annotation layer adds.
const ResourcePrefix = "An"

// Serializer converts annotations to page content. It holds no per-export
// state and may be shared.
type Serializer struct {
	Layout *layout.Engine
	Logger observability.Logger
	Tracer observability.Tracer
}

// New returns a serializer placing elements with engine.
func New(engine *layout.Engine, logger observability.Logger) *Serializer {
	return &Serializer{Layout: engine, Logger: logger}
}

// Export returns doc's bytes followed by an update that draws every
// annotation in m. doc and m are only read. Nothing is returned when any
// color, font or image fails.
func (s *Serializer) Export(ctx context.Context, doc *document.Handle, m *annotation.Model) (out []byte, err error) {
	start := time.Now()
	logger := observability.OrNop(s.Logger)
	tracer := s.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	_, span := tracer.StartSpan(ctx, observability.SpanExport)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	if m.PageCount() != doc.PageCount() {
		return nil, fmt.Errorf("annotations cover %d pages, document has %d", m.PageCount(), doc.PageCount())
	}
	if err := s.checkColors(m); err != nil {
		return nil, err
	}
	pages := m.AllPages()
	if len(pages) == 0 {
		return append([]byte(nil), doc.Bytes()...), nil
	}

	run := &exportRun{
		s:     s,
		doc:   doc,
		model: m,
		w:     writer.NewIncremental(doc.Bytes(), doc.Trailer(), doc.UsesXRefStream()),
		fonts: map[string]*embeddedFont{},
	}
	for _, p := range pages {
		if err := run.page(p); err != nil {
			return nil, err
		}
	}
	if err := run.finishFonts(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := run.w.Write(&buf); err != nil {
		return nil, fmt.Errorf("write update: %w", err)
	}
	elapsed := time.Since(start)
	span.SetTag(observability.MetricExportTime, elapsed)
	span.SetTag(observability.MetricExportBytes, buf.Len())
	span.SetTag(observability.MetricPagesTouched, len(pages))
	span.SetTag(observability.MetricFontsEmbedded, len(run.order))
	logger.Info("export finished",
		observability.Duration("duration", elapsed),
		observability.Int("bytes", buf.Len()),
		observability.Int("pages", len(pages)),
		observability.Int("fonts", len(run.order)),
	)
	return buf.Bytes(), nil
}

// checkColors parses every color up front so a bad value aborts the export
// before anything is built.
func (s *Serializer) checkColors(m *annotation.Model) error {
	style := s.Layout.Style
	for _, c := range []string{style.InkColor, style.HighlightColor} {
		if _, err := builder.ParseColor(c); err != nil {
			return err
		}
	}
	for _, p := range m.AllPages() {
		for _, el := range m.ElementsForPage(p) {
			if _, err := builder.ParseColor(elementColor(el.Payload)); err != nil {
				return fmt.Errorf("element %s on page %d: %w", el.ID, p, err)
			}
		}
	}
	return nil
}

func elementColor(p annotation.Payload) string {
	var c string
	switch v := p.(type) {
	case annotation.Text:
		c = v.Style.Color
	case annotation.Date:
		c = v.Style.Color
	case annotation.Signature:
		c = v.Color
	case annotation.Tick:
		c = v.Color
	case annotation.Cross:
		c = v.Color
	case annotation.Shape:
		c = v.StrokeColor
	}
	if c == "" {
		return "black"
	}
	return c
}

type embeddedFont struct {
	face *fonts.Face
	ref  raw.ObjectRef
	used *fonts.GlyphSet
}

// exportRun is the state of one export: the update being built and the
// fonts embedded so far, keyed by face.
type exportRun struct {
	s     *Serializer
	doc   *document.Handle
	model *annotation.Model
	w     *writer.Incremental

	fonts map[string]*embeddedFont
	order []*embeddedFont
	alpha *raw.ObjectRef
	qRef  *raw.ObjectRef
	bigQ  *raw.ObjectRef
}

func (r *exportRun) font(face *fonts.Face) *embeddedFont {
	if ef, ok := r.fonts[face.Key]; ok {
		return ef
	}
	ef := &embeddedFont{face: face, ref: r.w.Reserve(), used: fonts.NewGlyphSet()}
	r.fonts[face.Key] = ef
	r.order = append(r.order, ef)
	return ef
}

func (r *exportRun) finishFonts() error {
	for _, ef := range r.order {
		objs, err := fonts.FontObjects(ef.face, ef.ref, r.w.Reserve, ef.used)
		if err != nil {
			return &FontEmbedError{Font: ef.face.Name, Err: err}
		}
		for ref, obj := range objs {
			r.w.Set(ref, obj)
		}
	}
	return nil
}

func (r *exportRun) alphaGState() raw.ObjectRef {
	if r.alpha == nil {
		opacity := r.s.Layout.Style.HighlightOpacity
		gs := raw.Dict()
		gs.Set("Type", raw.NameLiteral("ExtGState"))
		gs.Set("ca", raw.Number(opacity))
		gs.Set("CA", raw.Number(opacity))
		ref := r.w.Add(gs)
		r.alpha = &ref
	}
	return *r.alpha
}

// wrapStreams are shared "q" and "Q" streams that isolate the original page
// content from the annotation layer.
func (r *exportRun) wrapStreams() (q, bigQ raw.ObjectRef) {
	if r.qRef == nil {
		qr := r.w.Add(raw.NewStream(raw.Dict(), []byte("q\n")))
		Qr := r.w.Add(raw.NewStream(raw.Dict(), []byte("\nQ\n")))
		r.qRef, r.bigQ = &qr, &Qr
	}
	return *r.qRef, *r.bigQ
}

func (r *exportRun) page(n int) error {
	frame := r.doc.Frame(n)
	resources, err := r.doc.Resources(n)
	if err != nil {
		return fmt.Errorf("page %d resources: %w", n, err)
	}
	layer := builder.NewPage(ResourcePrefix)
	for _, category := range []string{"Font", "XObject", "ExtGState"} {
		if sub, ok := resources.Get(category); ok {
			if dict, ok := sub.(*raw.DictObj); ok {
				layer.Reserve(dict.Keys()...)
			}
		}
	}
	layer.Transform(frame.ToUser)

	for _, el := range r.model.ElementsForPage(n) {
		if err := r.element(layer, el, frame); err != nil {
			return err
		}
	}
	if err := r.strokes(layer, n, frame); err != nil {
		return err
	}
	if err := r.highlights(layer, n, frame); err != nil {
		return err
	}
	return r.attach(n, layer, resources)
}

func (r *exportRun) element(layer *builder.Page, el annotation.Element, frame coords.Frame) error {
	pl, err := r.s.Layout.Place(el, frame.Height)
	if err != nil {
		if el.Kind() == annotation.KindImage {
			return &ImageEmbedError{Element: el.ID, Page: el.Page, Err: err}
		}
		return &FontEmbedError{Font: fontName(el.Payload), Element: el.ID, Err: err}
	}
	if el.Kind() == annotation.KindImage {
		return r.image(layer, el, pl)
	}
	color, err := builder.ParseColor(pl.Color)
	if err != nil {
		return fmt.Errorf("element %s: %w", el.ID, err)
	}

	switch el.Kind() {
	case annotation.KindShape:
		layer.DrawEllipse(pl.Origin.X, pl.Origin.Y, pl.Width/2, pl.Height/2, builder.PathOptions{
			StrokeColor: color,
			LineWidth:   pl.LineWidth,
			Stroke:      true,
		})
	default:
		ef := r.font(pl.Face)
		encoded, hex, err := pl.Face.Encode(pl.Text, ef.used)
		if err != nil {
			return &FontEmbedError{Font: pl.Face.Name, Element: el.ID, Err: err}
		}
		layer.DrawText(encoded, hex, pl.Origin.X, pl.Origin.Y, builder.TextOptions{
			Font:     layer.Font(ef.ref),
			FontSize: pl.Size,
			Color:    color,
		})
	}
	return nil
}

func fontName(p annotation.Payload) string {
	switch v := p.(type) {
	case annotation.Text:
		return v.Style.Family
	case annotation.Date:
		return v.Style.Family
	case annotation.Signature:
		return fonts.SignatureKey
	}
	return fonts.DingbatsKey
}

func (r *exportRun) image(layer *builder.Page, el annotation.Element, pl layout.Placement) error {
	img, err := builder.LoadImage(el.Payload.(annotation.Image).Data)
	if err != nil {
		return &ImageEmbedError{Element: el.ID, Page: el.Page, Err: err}
	}
	var smask *raw.ObjectRef
	if img.SMask != nil {
		obj, err := img.SMask.Object(nil)
		if err != nil {
			return &ImageEmbedError{Element: el.ID, Page: el.Page, Err: err}
		}
		ref := r.w.Add(obj)
		smask = &ref
	}
	obj, err := img.Object(smask)
	if err != nil {
		return &ImageEmbedError{Element: el.ID, Page: el.Page, Err: err}
	}
	name := layer.XObject(r.w.Add(obj))
	layer.DrawImage(name, pl.Origin.X, pl.Origin.Y, pl.Width, pl.Height)
	return nil
}

// strokes emits one path per begin-delimited run: a move to the first point
// and a line to each following one.
func (r *exportRun) strokes(layer *builder.Page, n int, frame coords.Frame) error {
	runs := r.model.Strokes(n)
	if len(runs) == 0 {
		return nil
	}
	style := r.s.Layout.Style
	ink, err := builder.ParseColor(style.InkColor)
	if err != nil {
		return err
	}
	opts := builder.PathOptions{
		StrokeColor: ink,
		LineWidth:   style.InkWidth,
		LineCap:     contentstream.CapRound,
		LineJoin:    contentstream.JoinRound,
		Stroke:      true,
	}
	for _, run := range runs {
		layer.DrawPath(StrokePath(run, frame), opts)
	}
	return nil
}

// StrokePath converts one run of viewport points to a display-frame path.
func StrokePath(run annotation.Stroke, frame coords.Frame) *contentstream.Path {
	path := new(contentstream.Path)
	for i, pt := range run.Points {
		d := frame.ToDocument(pt)
		if i == 0 {
			path.MoveTo(d.X, d.Y)
			continue
		}
		path.LineTo(d.X, d.Y)
	}
	return path
}

func (r *exportRun) highlights(layer *builder.Page, n int, frame coords.Frame) error {
	regions := r.model.Highlights(n)
	if len(regions) == 0 {
		return nil
	}
	fill, err := builder.ParseColor(r.s.Layout.Style.HighlightColor)
	if err != nil {
		return err
	}
	gs := layer.ExtGState(r.alphaGState())
	for _, h := range regions {
		rect := layout.HighlightRect(h, frame.Height)
		layer.DrawRectangle(rect.X, rect.Y, rect.W, rect.H, builder.PathOptions{
			FillColor: fill,
			Fill:      true,
			GState:    gs,
		})
	}
	return nil
}

// attach writes the layer as a new content stream and replaces the page
// dictionary so it paints the original content, isolated in q/Q, then the
// layer.
func (r *exportRun) attach(n int, layer *builder.Page, resources *raw.DictObj) error {
	if layer.Empty() {
		return nil
	}
	content, err := raw.NewFlateStream(raw.Dict(), layer.Bytes())
	if err != nil {
		return fmt.Errorf("compress page %d layer: %w", n, err)
	}
	layerRef := r.w.Add(content)

	pageDict, err := r.doc.PageDict(n)
	if err != nil {
		return fmt.Errorf("page %d: %w", n, err)
	}
	existing, err := r.doc.Contents(n)
	if err != nil {
		return fmt.Errorf("page %d contents: %w", n, err)
	}

	mergeResources(resources, "Font", layer.Fonts)
	mergeResources(resources, "XObject", layer.XObjects)
	mergeResources(resources, "ExtGState", layer.ExtGStates)

	contents := raw.NewArray()
	if len(existing) > 0 {
		q, bigQ := r.wrapStreams()
		contents.Append(raw.Ref(q))
		for _, ref := range existing {
			contents.Append(raw.Ref(ref))
		}
		contents.Append(raw.Ref(bigQ))
	}
	contents.Append(raw.Ref(layerRef))

	pageDict.Set("Resources", resources)
	pageDict.Set("Contents", contents)
	r.w.Set(r.doc.PageRef(n), pageDict)
	return nil
}

func mergeResources(resources *raw.DictObj, category string, names map[string]raw.ObjectRef) {
	if len(names) == 0 {
		return
	}
	sub, ok := resources.Get(category)
	dict, isDict := sub.(*raw.DictObj)
	if !ok || !isDict {
		dict = raw.Dict()
	} else {
		dict = dict.Clone()
	}
	for name, ref := range names {
		dict.Set(name, raw.Ref(ref))
	}
	resources.Set(category, dict)
}
