// Package session turns tool selections and pointer events into annotation
// model mutations and drives export and save for one loaded document.
//
// All coordinates are viewport coordinates in page units with the origin at
// the top-left of the displayed page. Scaling to screen pixels happens at the
// rendering surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/builder"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/layout"
	"github.com/wudi/pdfoverlay/observability"
	"github.com/wudi/pdfoverlay/persist"
)

// DefaultDateLayout pre-fills date prompts.
const DefaultDateLayout = "01/02/2006"

// Decoder decodes uploaded document bytes.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*document.Handle, error)
}

// Exporter bakes annotations into a document. It must only read its inputs.
type Exporter interface {
	Export(ctx context.Context, doc *document.Handle, m *annotation.Model) ([]byte, error)
}

// Gateway persists exported documents.
type Gateway interface {
	Save(ctx context.Context, data []byte, name string, rec persist.Record) (url, id string, err error)
}

// Prompt is an open content-entry dialog. EditID is set when the prompt
// edits an existing element instead of placing a new one.
type Prompt struct {
	Kind    annotation.Kind
	Page    int
	At      coords.Point
	Content string
	EditID  string
}

// PromptInput is what the user confirms a prompt with. Style is ignored for
// edits; signatures only use its size and color.
type PromptInput struct {
	Content string
	Style   annotation.TextStyle
}

type staged struct {
	data          []byte
	width, height float64
}

type pointerState struct {
	down   bool
	anchor coords.Point
	last   coords.Point
	// drag
	dragID string
	offset coords.Point
}

// Session is the editing state of one user: the loaded document, its
// annotations, the active tool and the page on display. Methods are safe to
// call from multiple goroutines; they are applied one at a time.
type Session struct {
	mu        sync.Mutex
	exporting atomic.Bool

	decoder    Decoder
	exporter   Exporter
	gateway    Gateway
	layout     *layout.Engine
	logger     observability.Logger
	now        func() time.Time
	dateLayout string

	doc      *document.Handle
	name     string
	model    *annotation.Model
	mode     Mode
	page     int
	image    *staged
	prompt   *Prompt
	pointer  pointerState
	editMode bool
	notices  []Notice
}

// Option configures a Session.
type Option func(*Session)

// WithDecoder replaces the default document decoder.
func WithDecoder(d Decoder) Option { return func(s *Session) { s.decoder = d } }

// WithGateway sets where Save persists documents.
func WithGateway(g Gateway) Option { return func(s *Session) { s.gateway = g } }

// WithLogger sets the session logger.
func WithLogger(l observability.Logger) Option { return func(s *Session) { s.logger = l } }

// WithClock sets the clock used for date prompts, notices and records.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithDateLayout sets the time layout date prompts are pre-filled with.
func WithDateLayout(layout string) Option {
	return func(s *Session) {
		if layout != "" {
			s.dateLayout = layout
		}
	}
}

// New creates a session with no document loaded.
func New(exporter Exporter, engine *layout.Engine, opts ...Option) *Session {
	s := &Session{
		decoder:    &document.Decoder{},
		exporter:   exporter,
		layout:     engine,
		logger:     observability.NopLogger{},
		now:        time.Now,
		dateLayout: DefaultDateLayout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = observability.OrNop(s.logger)
	return s
}

func (s *Session) notify(level Level, format string, args ...any) {
	n := Notice{Level: level, Message: fmt.Sprintf(format, args...), At: s.now()}
	s.notices = append(s.notices, n)
	s.logger.Info("notice", observability.String("level", level.String()), observability.String("message", n.Message))
}

func (s *Session) precondition(action string) error {
	if s.doc != nil {
		return nil
	}
	s.notify(LevelError, "No document loaded")
	return &ToolPreconditionError{Action: action}
}

// Load decodes data and makes it the session's document, discarding every
// annotation, the active tool and any open prompt. On failure the previous
// document and its annotations are kept. Loading is allowed while an export
// runs; the export finishes on the state it started with.
func (s *Session) Load(ctx context.Context, data []byte, name string) error {
	doc, err := s.decoder.Decode(ctx, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.notify(LevelError, "Could not open document: %v", err)
		return err
	}
	s.doc = doc
	s.name = name
	s.model = annotation.New(doc.PageCount())
	s.mode = None
	s.page = 1
	s.image = nil
	s.prompt = nil
	s.pointer = pointerState{}
	s.editMode = false
	s.logger.Info("document loaded",
		observability.String("name", name),
		observability.Int("pages", doc.PageCount()),
		observability.Int("bytes", len(data)),
	)
	return nil
}

// SelectTool activates mode, or returns to None when mode is already active.
// Switching tools drops any pointer gesture in progress.
func (s *Session) SelectTool(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == None {
		s.setMode(None)
		return nil
	}
	if err := s.precondition("select " + mode.String()); err != nil {
		return err
	}
	if s.prompt != nil {
		return ErrPromptPending
	}
	if s.mode == mode {
		s.setMode(None)
		return nil
	}
	if mode == PlacingImage && s.image == nil {
		return ErrNoImage
	}
	s.setMode(mode)
	return nil
}

func (s *Session) setMode(mode Mode) {
	if s.mode != mode {
		s.logger.Debug("tool changed", observability.String("from", s.mode.String()), observability.String("to", mode.String()))
	}
	s.mode = mode
	s.pointer = pointerState{}
}

// SelectImageTool stages an image and activates the image tool. A zero
// width or height is filled in from the image's natural size at placement.
func (s *Session) SelectImageTool(data []byte, width, height float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.precondition("select image"); err != nil {
		return err
	}
	if s.prompt != nil {
		return ErrPromptPending
	}
	if _, _, _, err := builder.ImageSize(data); err != nil {
		s.notify(LevelError, "Unsupported image: %v", err)
		return &ImageError{Err: err}
	}
	s.image = &staged{data: data, width: width, height: height}
	s.setMode(PlacingImage)
	return nil
}

// PointerDown handles a button press at pt on the current page.
func (s *Session) PointerDown(pt coords.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt != nil {
		return ErrPromptPending
	}
	if s.doc == nil {
		if s.mode != None {
			return s.precondition(s.mode.String())
		}
		return nil
	}
	s.pointer = pointerState{down: true, anchor: pt, last: pt}
	switch s.mode {
	case None:
		if el, ok := s.layout.HitTest(s.model.ElementsForPage(s.page), pt); ok {
			s.pointer.dragID = el.ID
			s.pointer.offset = pt.Sub(el.Pos)
		}
	case Drawing:
		s.model.AddStrokePoint(s.page, pt, annotation.Begin)
	}
	return nil
}

// PointerMove handles pointer motion. It only mutates the model while
// drawing or dragging with the button held.
func (s *Session) PointerMove(pt coords.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt != nil {
		return ErrPromptPending
	}
	if s.doc == nil || !s.pointer.down {
		return nil
	}
	s.pointer.last = pt
	switch {
	case s.mode == Drawing:
		s.model.AddStrokePoint(s.page, pt, annotation.Draw)
	case s.mode == None && s.pointer.dragID != "":
		s.model.MoveElement(s.pointer.dragID, pt.Sub(s.pointer.offset))
	}
	return nil
}

// PointerUp handles a button release. Placing tools act here: marks, shapes
// and images are placed at once; text, date and signature open a prompt.
// Either way the tool returns to None.
func (s *Session) PointerUp(pt coords.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt != nil {
		return ErrPromptPending
	}
	if s.doc == nil {
		if s.mode != None {
			return s.precondition(s.mode.String())
		}
		return nil
	}
	p := s.pointer
	s.pointer = pointerState{}

	switch mode := s.mode; {
	case mode == None:
		if p.dragID != "" {
			s.model.MoveElement(p.dragID, pt.Sub(p.offset))
		}
	case mode.Placing():
		s.place(mode, pt)
		s.setMode(None)
	case mode == Highlighting && p.down:
		r := coords.RectFromPoints(p.anchor, pt)
		if r.W > 0 && r.H > 0 {
			s.model.AddHighlight(s.page, r)
		}
	case mode == Erasing && p.down:
		r := coords.RectFromPoints(p.anchor, pt)
		if n := s.model.EraseHighlightsIntersecting(s.page, r); n > 0 {
			s.logger.Debug("highlights erased", observability.Int("page", s.page), observability.Int("count", n))
		}
	}
	return nil
}

func (s *Session) place(mode Mode, pt coords.Point) {
	switch mode {
	case PlacingTick:
		s.model.AddElement(s.page, pt, annotation.Tick{})
	case PlacingCross:
		s.model.AddElement(s.page, pt, annotation.Cross{})
	case PlacingShape:
		s.model.AddElement(s.page, pt, annotation.Shape{Shape: annotation.ShapeCircle})
	case PlacingImage:
		img := s.image
		s.model.AddElement(s.page, pt, annotation.Image{Data: img.data, Width: img.width, Height: img.height})
	default:
		pr := &Prompt{Kind: mode.placedKind(), Page: s.page, At: pt}
		if mode == PlacingDate {
			pr.Content = s.now().Format(s.dateLayout)
		}
		s.prompt = pr
	}
}

// ConfirmPrompt materializes the open prompt and returns the id of the
// created or edited element. Empty content is treated as a cancel and
// returns an empty id.
func (s *Session) ConfirmPrompt(in PromptInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr := s.prompt
	if pr == nil {
		return "", ErrNoPrompt
	}
	s.prompt = nil
	if in.Content == "" {
		return "", nil
	}
	if pr.EditID != "" {
		s.model.SetContent(pr.EditID, in.Content)
		return pr.EditID, nil
	}
	var payload annotation.Payload
	switch pr.Kind {
	case annotation.KindText:
		payload = annotation.Text{Content: in.Content, Style: in.Style}
	case annotation.KindDate:
		payload = annotation.Date{Content: in.Content, Style: in.Style}
	case annotation.KindSignature:
		payload = annotation.Signature{Content: in.Content, Size: in.Style.Size, Color: in.Style.Color}
	default:
		panic(fmt.Sprintf("session: prompt for %s", pr.Kind))
	}
	return s.model.AddElement(pr.Page, pr.At, payload), nil
}

// CancelPrompt closes the open prompt without mutating anything.
func (s *Session) CancelPrompt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt == nil {
		return ErrNoPrompt
	}
	s.prompt = nil
	return nil
}

// ToggleEditMode switches double-click editing on or off and returns the
// new setting.
func (s *Session) ToggleEditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editMode = !s.editMode
	return s.editMode
}

// DoubleClick opens an edit prompt for the text-like element under pt when
// edit mode is on. It reports whether a prompt was opened.
func (s *Session) DoubleClick(pt coords.Point) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt != nil {
		return false, ErrPromptPending
	}
	if s.doc == nil || !s.editMode {
		return false, nil
	}
	el, ok := s.layout.HitTest(s.model.ElementsForPage(s.page), pt)
	if !ok {
		return false, nil
	}
	tl, ok := el.Payload.(annotation.TextLike)
	if !ok {
		return false, nil
	}
	s.prompt = &Prompt{Kind: el.Kind(), Page: el.Page, At: el.Pos, Content: tl.Text(), EditID: el.ID}
	return true, nil
}

// NextPage moves to the following page, staying on the last one.
func (s *Session) NextPage() int { return s.movePage(func(p int) int { return p + 1 }) }

// PrevPage moves to the preceding page, staying on the first one.
func (s *Session) PrevPage() int { return s.movePage(func(p int) int { return p - 1 }) }

// GoToPage moves to page n, clamped to the document's pages.
func (s *Session) GoToPage(n int) int { return s.movePage(func(int) int { return n }) }

func (s *Session) movePage(next func(int) int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return 0
	}
	p := next(s.page)
	if p < 1 {
		p = 1
	}
	if last := s.doc.PageCount(); p > last {
		p = last
	}
	if p != s.page {
		s.page = p
		s.pointer = pointerState{}
	}
	return s.page
}

// Export bakes the current annotations into a new document. Only one export
// or save runs at a time; a concurrent request fails with
// ErrExportInProgress without waiting.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	if !s.exporting.CompareAndSwap(false, true) {
		return nil, ErrExportInProgress
	}
	defer s.exporting.Store(false)
	b, err := s.export(ctx)
	return b.data, err
}

// baked is an export result with the document and name it was taken from.
type baked struct {
	data []byte
	doc  *document.Handle
	name string
}

func (s *Session) export(ctx context.Context) (baked, error) {
	s.mu.Lock()
	if s.doc == nil {
		err := s.precondition("export")
		s.mu.Unlock()
		return baked{}, err
	}
	doc, name, m := s.doc, s.name, s.model.Snapshot()
	s.mu.Unlock()

	out, err := s.exporter.Export(ctx, doc, m)
	if err != nil {
		s.mu.Lock()
		var ce *builder.ColorParseError
		if errors.As(err, &ce) {
			s.notify(LevelError, "Invalid color %q", ce.Value)
		} else {
			s.notify(LevelError, "Export failed: %v", err)
		}
		s.mu.Unlock()
		return baked{}, err
	}
	return baked{data: out, doc: doc, name: name}, nil
}

// Exporting reports whether an export or save is running.
func (s *Session) Exporting() bool { return s.exporting.Load() }

// Save exports and persists the result with report as its metadata. The
// blob is stored before the record is written; a failed record leaves the
// stored blob in place and is logged with its URL.
func (s *Session) Save(ctx context.Context, report persist.Report) (url, id string, err error) {
	if s.gateway == nil {
		return "", "", errors.New("no persistence gateway configured")
	}
	if !s.exporting.CompareAndSwap(false, true) {
		return "", "", ErrExportInProgress
	}
	defer s.exporting.Store(false)

	b, err := s.export(ctx)
	if err != nil {
		return "", "", err
	}
	name := b.name
	if name == "" {
		name = "report.pdf"
	}
	rec := persist.Record{Report: report, PageCount: b.doc.PageCount(), CreatedAt: s.now()}
	url, id, err = s.gateway.Save(ctx, b.data, name, rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		var re *persist.RecordError
		if errors.As(err, &re) {
			s.logger.Warn("stored document has no metadata record",
				observability.String("url", re.URL), observability.Err(re.Err))
		}
		s.notify(LevelError, "Save failed: %v", err)
		return url, "", err
	}
	s.notify(LevelInfo, "Save succeeded")
	return url, id, nil
}

// State is a read-only summary of the session.
type State struct {
	Loaded    bool
	Name      string
	Mode      Mode
	Page      int
	PageCount int
	EditMode  bool
	Exporting bool
	Prompt    *Prompt
	// Gesture is the live rectangle of a highlight or erase drag.
	Gesture *coords.Rect
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Loaded:    s.doc != nil,
		Name:      s.name,
		Mode:      s.mode,
		Page:      s.page,
		EditMode:  s.editMode,
		Exporting: s.exporting.Load(),
	}
	if s.doc != nil {
		st.PageCount = s.doc.PageCount()
	}
	if s.prompt != nil {
		pr := *s.prompt
		st.Prompt = &pr
	}
	if s.pointer.down && (s.mode == Highlighting || s.mode == Erasing) {
		r := coords.RectFromPoints(s.pointer.anchor, s.pointer.last)
		st.Gesture = &r
	}
	return st
}

// Snapshot returns the loaded document and an independent copy of its
// annotations, or nils when nothing is loaded.
func (s *Session) Snapshot() (*document.Handle, *annotation.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, nil
	}
	return s.doc, s.model.Snapshot()
}

// Notices returns and clears the pending notices.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}
