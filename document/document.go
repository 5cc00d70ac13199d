// Package document decodes source PDFs and exposes what the annotation engine
// needs from them: page count, page geometry, page dictionaries and the
// trailer an incremental update continues from.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/ir/raw"
	"github.com/wudi/pdfoverlay/observability"
	"github.com/wudi/pdfoverlay/writer"
)

func init() {
	api.DisableConfigDir()
}

// ErrEncrypted rejects encrypted input; the update writer cannot encrypt the
// objects it appends.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// DecodeError reports bytes that are not a usable PDF.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode document: %s: %v", e.Reason, e.Err)
	}
	return "decode document: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Limits bounds the documents Decode accepts.
type Limits struct {
	// Maximum input size in bytes. Default: 100 MB.
	MaxDocumentSize int64
	// Maximum number of pages. Default: 5000.
	MaxPages int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDocumentSize: 100 * 1024 * 1024,
		MaxPages:        5000,
	}
}

// Decoder turns bytes into a Handle.
type Decoder struct {
	Limits Limits
	Logger observability.Logger
	Tracer observability.Tracer
}

// Handle is a decoded, immutable source document.
type Handle struct {
	data       []byte
	ctx        *model.Context
	pages      []pageInfo
	trailer    writer.Trailer
	xrefStream bool
}

type pageInfo struct {
	ref    raw.ObjectRef
	media  coords.Box
	rotate int
}

// Decode decodes data with the default decoder.
func Decode(ctx context.Context, data []byte) (*Handle, error) {
	return (&Decoder{}).Decode(ctx, data)
}

// Decode validates data and indexes its pages. data is copied.
func (d *Decoder) Decode(ctx context.Context, data []byte) (h *Handle, err error) {
	logger := observability.OrNop(d.Logger)
	tracer := d.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	_, span := tracer.StartSpan(ctx, observability.SpanDecode)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	limits := d.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty input"}
	}
	if limits.MaxDocumentSize > 0 && int64(len(data)) > limits.MaxDocumentSize {
		return nil, &DecodeError{Reason: fmt.Sprintf("document is %d bytes, limit is %d", len(data), limits.MaxDocumentSize)}
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, &DecodeError{Reason: "missing %PDF header"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := append([]byte(nil), data...)
	pctx, err := read(buf)
	if err != nil {
		return nil, err
	}
	if pctx.Encrypt != nil {
		return nil, &DecodeError{Reason: "encrypted", Err: ErrEncrypted}
	}
	if pctx.PageCount < 1 {
		return nil, &DecodeError{Reason: "document has no pages"}
	}
	if limits.MaxPages > 0 && pctx.PageCount > limits.MaxPages {
		return nil, &DecodeError{Reason: fmt.Sprintf("document has %d pages, limit is %d", pctx.PageCount, limits.MaxPages)}
	}

	h = &Handle{data: buf, ctx: pctx}
	for n := 1; n <= pctx.PageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := indexPage(pctx, n)
		if err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("page %d", n), Err: err}
		}
		h.pages = append(h.pages, info)
	}
	if h.trailer, err = trailerOf(pctx, buf); err != nil {
		return nil, &DecodeError{Reason: "trailer", Err: err}
	}
	h.xrefStream = writer.UsesXRefStream(buf, h.trailer.Prev)

	span.SetTag(observability.MetricPageCount, len(h.pages))
	logger.Info("document decoded",
		observability.Int("pages", len(h.pages)),
		observability.Int("bytes", len(buf)),
		observability.Bool("xref_stream", h.xrefStream),
	)
	return h, nil
}

func read(data []byte) (ctx *model.Context, err error) {
	// pdfcpu panics on some malformed input
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, &DecodeError{Reason: "malformed document", Err: fmt.Errorf("%v", r)}
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err = api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &DecodeError{Reason: "read", Err: err}
	}
	if err = api.ValidateContext(ctx); err != nil {
		return nil, &DecodeError{Reason: "validate", Err: err}
	}
	if err = ctx.EnsurePageCount(); err != nil {
		return nil, &DecodeError{Reason: "page count", Err: err}
	}
	return ctx, nil
}

func indexPage(ctx *model.Context, n int) (pageInfo, error) {
	_, ref, inh, err := ctx.PageDict(n, false)
	if err != nil {
		return pageInfo{}, err
	}
	if ref == nil {
		return pageInfo{}, errors.New("page is not an indirect object")
	}
	info := pageInfo{ref: convertRef(*ref)}
	if inh != nil {
		info.rotate = inh.Rotate
		if inh.MediaBox != nil {
			mb := inh.MediaBox
			info.media = coords.Box{LLX: mb.LL.X, LLY: mb.LL.Y, URX: mb.UR.X, URY: mb.UR.Y}
		}
	}
	if info.media.Width() == 0 || info.media.Height() == 0 {
		// US Letter, as readers assume for a missing MediaBox
		info.media = coords.Box{URX: 612, URY: 792}
	}
	return info, nil
}

func trailerOf(ctx *model.Context, data []byte) (writer.Trailer, error) {
	var t writer.Trailer
	if ctx.Root == nil {
		return t, errors.New("missing /Root")
	}
	t.Root = convertRef(*ctx.Root)
	if ctx.Info != nil {
		info := convertRef(*ctx.Info)
		t.Info = &info
	}
	if ctx.Size != nil {
		t.Size = *ctx.Size
	}
	for i, o := range ctx.ID {
		if i > 1 {
			break
		}
		if b, ok := stringBytes(o); ok {
			t.ID[i] = b
		}
	}
	t.Prev = writer.LastStartXRef(data)
	if t.Prev == 0 {
		return t, errors.New("missing startxref")
	}
	return t, nil
}

func convertRef(r types.IndirectRef) raw.ObjectRef {
	return raw.ObjectRef{Num: int(r.ObjectNumber), Gen: int(r.GenerationNumber)}
}

// PageCount returns the number of pages.
func (h *Handle) PageCount() int { return len(h.pages) }

func (h *Handle) page(n int) pageInfo {
	if n < 1 || n > len(h.pages) {
		panic(fmt.Sprintf("document: page %d out of range [1, %d]", n, len(h.pages)))
	}
	return h.pages[n-1]
}

// PageSize returns the displayed width and height of page n, with /Rotate
// applied.
func (h *Handle) PageSize(n int) (width, height float64) {
	f := h.Frame(n)
	return f.Width, f.Height
}

// Frame returns the display frame of page n.
func (h *Handle) Frame(n int) coords.Frame {
	p := h.page(n)
	return coords.NewFrame(p.media, p.rotate)
}

// PageRef returns the object reference of page n's dictionary.
func (h *Handle) PageRef(n int) raw.ObjectRef { return h.page(n).ref }

// PageDict returns a copy of page n's own dictionary. Values that are
// indirect stay references.
func (h *Handle) PageDict(n int) (*raw.DictObj, error) {
	h.page(n)
	d, _, _, err := h.ctx.PageDict(n, false)
	if err != nil {
		return nil, err
	}
	return convertDict(d), nil
}

// Resources returns a copy of page n's effective resource dictionary,
// inherited when the page has none of its own. Sub-dictionaries stored as
// indirect objects are resolved one level so entries can be added to them.
func (h *Handle) Resources(n int) (*raw.DictObj, error) {
	h.page(n)
	_, _, inh, err := h.ctx.PageDict(n, false)
	if err != nil {
		return nil, err
	}
	out := raw.Dict()
	if inh == nil || inh.Resources == nil {
		return out, nil
	}
	for k, v := range inh.Resources {
		if ref, ok := v.(types.IndirectRef); ok {
			if sub, err := h.ctx.DereferenceDict(ref); err == nil && sub != nil {
				out.Set(k, convertDict(sub))
				continue
			}
		}
		out.Set(k, convert(v))
	}
	return out, nil
}

// Bytes returns the original document bytes. Callers must not modify them.
func (h *Handle) Bytes() []byte { return h.data }

// Trailer returns what an incremental update of this document continues from.
func (h *Handle) Trailer() writer.Trailer {
	t := h.trailer
	if t.Info != nil {
		info := *t.Info
		t.Info = &info
	}
	return t
}

// UsesXRefStream reports whether the document's latest cross-reference section
// is a stream.
func (h *Handle) UsesXRefStream() bool { return h.xrefStream }

// Contents returns the references of page n's content streams in paint
// order. An indirect array of streams is flattened.
func (h *Handle) Contents(n int) ([]raw.ObjectRef, error) {
	h.page(n)
	d, _, _, err := h.ctx.PageDict(n, false)
	if err != nil {
		return nil, err
	}
	obj, ok := d.Find("Contents")
	if !ok || obj == nil {
		return nil, nil
	}
	switch v := obj.(type) {
	case types.IndirectRef:
		target, err := h.ctx.Dereference(v)
		if err != nil {
			return nil, fmt.Errorf("resolve /Contents: %w", err)
		}
		if arr, ok := target.(types.Array); ok {
			return streamRefs(arr)
		}
		return []raw.ObjectRef{convertRef(v)}, nil
	case types.Array:
		return streamRefs(v)
	}
	return nil, fmt.Errorf("unexpected /Contents of type %T", obj)
}

// StreamContent returns the decoded data of the stream at ref.
func (h *Handle) StreamContent(ref raw.ObjectRef) ([]byte, error) {
	ir := types.IndirectRef{ObjectNumber: types.Integer(ref.Num), GenerationNumber: types.Integer(ref.Gen)}
	sd, _, err := h.ctx.DereferenceStreamDict(ir)
	if err != nil {
		return nil, fmt.Errorf("resolve %d %d R: %w", ref.Num, ref.Gen, err)
	}
	if sd == nil {
		return nil, fmt.Errorf("object %d %d R is not a stream", ref.Num, ref.Gen)
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("decode stream %d %d R: %w", ref.Num, ref.Gen, err)
	}
	return sd.Content, nil
}

func streamRefs(arr types.Array) ([]raw.ObjectRef, error) {
	refs := make([]raw.ObjectRef, 0, len(arr))
	for _, it := range arr {
		ref, ok := it.(types.IndirectRef)
		if !ok {
			return nil, fmt.Errorf("content stream entry of type %T is not a reference", it)
		}
		refs = append(refs, convertRef(ref))
	}
	return refs, nil
}
