package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/builder"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/export"
	"github.com/wudi/pdfoverlay/fonts"
	"github.com/wudi/pdfoverlay/internal/pdftest"
	"github.com/wudi/pdfoverlay/ir/raw"
	"github.com/wudi/pdfoverlay/layout"
	"github.com/wudi/pdfoverlay/persist"
)

var fixedNow = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

func twoPages() []byte { return pdftest.Build(pdftest.Pages(2, pdftest.Letter), pdftest.Options{}) }

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	engine := layout.NewEngine(fonts.NewRegistry())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(export.New(engine, nil), engine, opts...)
}

func loaded(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := newSession(t, opts...)
	if err := s.Load(context.Background(), twoPages(), "inspection.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func click(t *testing.T, s *Session, x, y float64) {
	t.Helper()
	pt := coords.Point{X: x, Y: y}
	if err := s.PointerDown(pt); err != nil {
		t.Fatalf("down: %v", err)
	}
	if err := s.PointerUp(pt); err != nil {
		t.Fatalf("up: %v", err)
	}
}

func drag(t *testing.T, s *Session, from, to coords.Point) {
	t.Helper()
	if err := s.PointerDown(from); err != nil {
		t.Fatalf("down: %v", err)
	}
	if err := s.PointerMove(to); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := s.PointerUp(to); err != nil {
		t.Fatalf("up: %v", err)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func elements(s *Session, page int) []annotation.Element {
	_, m := s.Snapshot()
	return m.ElementsForPage(page)
}

func TestParseMode(t *testing.T) {
	for m := None; m <= Erasing; m++ {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("lasso"); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}

func TestToggleLaw(t *testing.T) {
	s := loaded(t)
	for _, m := range []Mode{PlacingText, PlacingDate, PlacingSignature, PlacingTick, PlacingCross, PlacingShape, Drawing, Highlighting, Erasing} {
		if err := s.SelectTool(m); err != nil {
			t.Fatalf("select %s: %v", m, err)
		}
		if got := s.State().Mode; got != m {
			t.Fatalf("mode = %s, want %s", got, m)
		}
		if err := s.SelectTool(m); err != nil {
			t.Fatalf("reselect %s: %v", m, err)
		}
		if got := s.State().Mode; got != None {
			t.Fatalf("toggle %s: mode = %s, want none", m, got)
		}
	}
}

func TestSelectingReplacesActiveTool(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(Drawing)
	_ = s.SelectTool(Highlighting)
	if got := s.State().Mode; got != Highlighting {
		t.Fatalf("mode = %s", got)
	}
}

func TestToolsRequireDocument(t *testing.T) {
	s := newSession(t)
	for _, m := range []Mode{PlacingText, PlacingTick, Drawing, Highlighting, Erasing} {
		err := s.SelectTool(m)
		var pe *ToolPreconditionError
		if !errors.As(err, &pe) || !errors.Is(err, ErrNoDocument) {
			t.Fatalf("select %s: got %v", m, err)
		}
	}
	if err := s.SelectImageTool(pngBytes(t), 10, 10); err == nil {
		t.Fatalf("image tool without document should fail")
	}
	if _, err := s.Export(context.Background()); err == nil {
		t.Fatalf("export without document should fail")
	}
	if st := s.State(); st.Mode != None || st.Loaded {
		t.Fatalf("state changed: %+v", st)
	}
	notices := s.Notices()
	if len(notices) == 0 || notices[0].Message != "No document loaded" || notices[0].Level != LevelError {
		t.Fatalf("unexpected notices %+v", notices)
	}
	if len(s.Notices()) != 0 {
		t.Fatalf("notices not drained")
	}

	if err := s.Load(context.Background(), twoPages(), "a.pdf"); err != nil {
		t.Fatal(err)
	}
	for p := 1; p <= 2; p++ {
		if els := elements(s, p); len(els) != 0 {
			t.Fatalf("page %d has %d elements", p, len(els))
		}
	}
}

func TestPlacingIsOneShot(t *testing.T) {
	s := loaded(t)
	cases := []struct {
		mode Mode
		kind annotation.Kind
	}{
		{PlacingTick, annotation.KindTick},
		{PlacingCross, annotation.KindCross},
		{PlacingShape, annotation.KindShape},
	}
	for i, tc := range cases {
		if err := s.SelectTool(tc.mode); err != nil {
			t.Fatal(err)
		}
		click(t, s, 100, float64(100+50*i))
		if s.State().Mode != None {
			t.Fatalf("%s: tool stayed active", tc.mode)
		}
		els := elements(s, 1)
		if len(els) != i+1 {
			t.Fatalf("%s: %d elements", tc.mode, len(els))
		}
		last := els[len(els)-1]
		if last.Kind() != tc.kind || last.Pos != (coords.Point{X: 100, Y: float64(100 + 50*i)}) {
			t.Fatalf("%s: placed %+v", tc.mode, last)
		}
	}
	// a click with no tool places nothing
	click(t, s, 400, 400)
	if n := len(elements(s, 1)); n != 3 {
		t.Fatalf("elements = %d", n)
	}
}

func TestImageTool(t *testing.T) {
	s := loaded(t)
	if err := s.SelectTool(PlacingImage); !errors.Is(err, ErrNoImage) {
		t.Fatalf("got %v", err)
	}
	var ie *ImageError
	if err := s.SelectImageTool([]byte("not an image"), 0, 0); !errors.As(err, &ie) {
		t.Fatalf("expected ImageError, got %v", err)
	}
	if s.State().Mode != None {
		t.Fatalf("mode changed to %v", s.State().Mode)
	}
	data := pngBytes(t)
	if err := s.SelectImageTool(data, 40, 0); err != nil {
		t.Fatal(err)
	}
	click(t, s, 20, 30)
	els := elements(s, 1)
	if len(els) != 1 {
		t.Fatalf("elements = %d", len(els))
	}
	img, ok := els[0].Payload.(annotation.Image)
	if !ok || img.Width != 40 || img.Height != 0 || len(img.Data) != len(data) {
		t.Fatalf("unexpected payload %#v", els[0].Payload)
	}
}

func TestTextPrompt(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(PlacingText)
	click(t, s, 100, 200)

	st := s.State()
	if st.Mode != None || st.Prompt == nil || st.Prompt.Kind != annotation.KindText {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(elements(s, 1)) != 0 {
		t.Fatalf("element placed before confirm")
	}
	if err := s.PointerDown(coords.Point{}); !errors.Is(err, ErrPromptPending) {
		t.Fatalf("pointer during prompt: %v", err)
	}

	style := annotation.TextStyle{Family: "Courier New", Bold: true, Size: 20, Color: "red"}
	id, err := s.ConfirmPrompt(PromptInput{Content: "Roof leak", Style: style})
	if err != nil {
		t.Fatal(err)
	}
	want := []annotation.Element{{
		ID:      id,
		Page:    1,
		Pos:     coords.Point{X: 100, Y: 200},
		Payload: annotation.Text{Content: "Roof leak", Style: style},
	}}
	if diff := cmp.Diff(want, elements(s, 1)); diff != "" {
		t.Fatalf("elements (-want +got):\n%s", diff)
	}
	if _, err := s.ConfirmPrompt(PromptInput{Content: "x"}); !errors.Is(err, ErrNoPrompt) {
		t.Fatalf("second confirm: %v", err)
	}
}

func TestPromptCancel(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(PlacingSignature)
	click(t, s, 10, 10)
	if err := s.CancelPrompt(); err != nil {
		t.Fatal(err)
	}
	_ = s.SelectTool(PlacingText)
	click(t, s, 10, 10)
	if id, err := s.ConfirmPrompt(PromptInput{}); err != nil || id != "" {
		t.Fatalf("empty confirm: %q %v", id, err)
	}
	if len(elements(s, 1)) != 0 {
		t.Fatalf("cancel mutated the model")
	}
	if err := s.CancelPrompt(); !errors.Is(err, ErrNoPrompt) {
		t.Fatalf("got %v", err)
	}
}

func TestDatePromptPrefilled(t *testing.T) {
	s := loaded(t, WithDateLayout("2006-01-02"))
	_ = s.SelectTool(PlacingDate)
	click(t, s, 10, 10)
	if pr := s.State().Prompt; pr == nil || pr.Content != "2024-05-17" {
		t.Fatalf("prompt = %+v", pr)
	}
	if _, err := s.ConfirmPrompt(PromptInput{Content: "2024-05-17"}); err != nil {
		t.Fatal(err)
	}
	if els := elements(s, 1); len(els) != 1 || els[0].Kind() != annotation.KindDate {
		t.Fatalf("elements %+v", els)
	}
}

func TestSignaturePrompt(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(PlacingSignature)
	click(t, s, 10, 10)
	if _, err := s.ConfirmPrompt(PromptInput{Content: "J. Doe", Style: annotation.TextStyle{Size: 30, Color: "blue"}}); err != nil {
		t.Fatal(err)
	}
	got := elements(s, 1)[0].Payload
	if diff := cmp.Diff(annotation.Signature{Content: "J. Doe", Size: 30, Color: "blue"}, got); diff != "" {
		t.Fatalf("payload (-want +got):\n%s", diff)
	}
}

func TestDrawing(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(Drawing)

	_ = s.PointerMove(coords.Point{X: 1, Y: 1}) // not held
	_ = s.PointerDown(coords.Point{X: 10, Y: 10})
	_ = s.PointerMove(coords.Point{X: 20, Y: 10})
	_ = s.PointerMove(coords.Point{X: 30, Y: 15})
	_ = s.PointerUp(coords.Point{X: 30, Y: 15})
	_ = s.PointerMove(coords.Point{X: 99, Y: 99}) // released
	_ = s.PointerDown(coords.Point{X: 50, Y: 50})
	_ = s.PointerMove(coords.Point{X: 60, Y: 60})
	_ = s.PointerUp(coords.Point{X: 60, Y: 60})

	if s.State().Mode != Drawing {
		t.Fatalf("drawing should stay active")
	}
	_, m := s.Snapshot()
	want := []annotation.Stroke{
		{Page: 1, Points: []coords.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 30, Y: 15}}},
		{Page: 1, Points: []coords.Point{{X: 50, Y: 50}, {X: 60, Y: 60}}},
	}
	if diff := cmp.Diff(want, m.Strokes(1)); diff != "" {
		t.Fatalf("strokes (-want +got):\n%s", diff)
	}
}

func TestHighlightAndErase(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(Highlighting)
	_ = s.PointerDown(coords.Point{X: 60, Y: 60})
	_ = s.PointerMove(coords.Point{X: 30, Y: 30})
	if g := s.State().Gesture; g == nil || *g != (coords.Rect{X: 30, Y: 30, W: 30, H: 30}) {
		t.Fatalf("gesture = %+v", g)
	}
	_, m := s.Snapshot()
	if len(m.Highlights(1)) != 0 {
		t.Fatalf("move committed a highlight")
	}
	_ = s.PointerUp(coords.Point{X: 10, Y: 10})
	click(t, s, 200, 200) // zero area

	_, m = s.Snapshot()
	if diff := cmp.Diff([]coords.Rect{{X: 10, Y: 10, W: 50, H: 50}}, m.Highlights(1)); diff != "" {
		t.Fatalf("highlights (-want +got):\n%s", diff)
	}

	_ = s.SelectTool(Erasing)
	drag(t, s, coords.Point{X: 0, Y: 0}, coords.Point{X: 40, Y: 40})
	if _, m = s.Snapshot(); len(m.Highlights(1)) != 1 {
		t.Fatalf("partial overlap erased the highlight")
	}
	drag(t, s, coords.Point{X: 100, Y: 100}, coords.Point{X: 0, Y: 0})
	if _, m = s.Snapshot(); len(m.Highlights(1)) != 0 {
		t.Fatalf("contained highlight survived")
	}
}

func TestDragElement(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(PlacingShape)
	click(t, s, 100, 200)

	drag(t, s, coords.Point{X: 110, Y: 210}, coords.Point{X: 160, Y: 260})
	els := elements(s, 1)
	if els[0].Pos != (coords.Point{X: 150, Y: 250}) {
		t.Fatalf("pos = %+v", els[0].Pos)
	}
	// unconstrained
	drag(t, s, coords.Point{X: 160, Y: 260}, coords.Point{X: -40, Y: 1000})
	if p := elements(s, 1)[0].Pos; p != (coords.Point{X: -50, Y: 990}) {
		t.Fatalf("pos = %+v", p)
	}
	// a press on empty space drags nothing
	drag(t, s, coords.Point{X: 500, Y: 10}, coords.Point{X: 520, Y: 30})
	if p := elements(s, 1)[0].Pos; p != (coords.Point{X: -50, Y: 990}) {
		t.Fatalf("pos = %+v", p)
	}
}

func TestEditMode(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(PlacingText)
	click(t, s, 100, 200)
	id, _ := s.ConfirmPrompt(PromptInput{Content: "hello"})

	if ok, _ := s.DoubleClick(coords.Point{X: 101, Y: 205}); ok {
		t.Fatalf("double click outside edit mode opened a prompt")
	}
	if !s.ToggleEditMode() {
		t.Fatalf("edit mode not enabled")
	}
	ok, err := s.DoubleClick(coords.Point{X: 101, Y: 205})
	if err != nil || !ok {
		t.Fatalf("double click: %v %v", ok, err)
	}
	pr := s.State().Prompt
	if pr == nil || pr.EditID != id || pr.Content != "hello" {
		t.Fatalf("prompt = %+v", pr)
	}
	got, err := s.ConfirmPrompt(PromptInput{Content: "bye"})
	if err != nil || got != id {
		t.Fatalf("confirm: %q %v", got, err)
	}
	el := elements(s, 1)[0]
	if el.ID != id || el.Page != 1 || el.Pos != (coords.Point{X: 100, Y: 200}) || el.Payload.(annotation.Text).Content != "bye" {
		t.Fatalf("edited element %+v", el)
	}
	if s.ToggleEditMode() {
		t.Fatalf("edit mode not disabled")
	}
}

func TestPageNavigation(t *testing.T) {
	s := newSession(t)
	if s.NextPage() != 0 {
		t.Fatalf("navigation without document")
	}
	_ = s.Load(context.Background(), twoPages(), "a.pdf")
	steps := []struct {
		do   func() int
		want int
	}{
		{s.PrevPage, 1},
		{s.NextPage, 2},
		{s.NextPage, 2},
		{func() int { return s.GoToPage(0) }, 1},
		{func() int { return s.GoToPage(9) }, 2},
	}
	for i, st := range steps {
		if got := st.do(); got != st.want {
			t.Fatalf("step %d: page %d, want %d", i, got, st.want)
		}
	}
	_ = s.SelectTool(PlacingTick)
	click(t, s, 5, 5)
	if len(elements(s, 2)) != 1 || len(elements(s, 1)) != 0 {
		t.Fatalf("element not placed on the current page")
	}
}

func TestLoadDiscardsState(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(PlacingTick)
	click(t, s, 5, 5)
	s.NextPage()
	_ = s.SelectTool(Drawing)

	if err := s.Load(context.Background(), []byte("garbage"), "bad.pdf"); err == nil {
		t.Fatalf("expected decode error")
	} else {
		var de *document.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("got %T", err)
		}
	}
	if len(elements(s, 1)) != 1 || s.State().Name != "inspection.pdf" {
		t.Fatalf("failed load discarded the previous document")
	}

	if err := s.Load(context.Background(), twoPages(), "other.pdf"); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Mode != None || st.Page != 1 || st.Name != "other.pdf" || len(elements(s, 1)) != 0 {
		t.Fatalf("state after reload %+v", st)
	}
}

type blockingExporter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExporter) Export(ctx context.Context, doc *document.Handle, m *annotation.Model) ([]byte, error) {
	close(b.started)
	<-b.release
	return []byte("%PDF-done"), nil
}

func TestExportGuard(t *testing.T) {
	ex := &blockingExporter{started: make(chan struct{}), release: make(chan struct{})}
	engine := layout.NewEngine(fonts.NewRegistry())
	s := New(ex, engine, WithGateway(persist.Gateway{}))
	if err := s.Load(context.Background(), twoPages(), "a.pdf"); err != nil {
		t.Fatal(err)
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.Export(context.Background())
		done <- result{out, err}
	}()
	<-ex.started

	if !s.Exporting() || !s.State().Exporting {
		t.Fatalf("export flag not set")
	}
	if _, err := s.Export(context.Background()); !errors.Is(err, ErrExportInProgress) {
		t.Fatalf("second export: %v", err)
	}
	if _, _, err := s.Save(context.Background(), persist.Report{}); !errors.Is(err, ErrExportInProgress) {
		t.Fatalf("save during export: %v", err)
	}
	// uploads are never blocked by an export
	if err := s.Load(context.Background(), twoPages(), "b.pdf"); err != nil {
		t.Fatalf("load during export: %v", err)
	}

	close(ex.release)
	r := <-done
	if r.err != nil || string(r.out) != "%PDF-done" {
		t.Fatalf("first export: %q %v", r.out, r.err)
	}
	if s.Exporting() {
		t.Fatalf("export flag not cleared")
	}
}

type capturingGateway struct {
	name string
	rec  persist.Record
}

func (g *capturingGateway) Save(_ context.Context, _ []byte, name string, rec persist.Record) (string, string, error) {
	g.name, g.rec = name, rec
	return "file:///" + name, "1", nil
}

func TestSaveKeepsNameOfExportedDocument(t *testing.T) {
	ex := &blockingExporter{started: make(chan struct{}), release: make(chan struct{})}
	gw := &capturingGateway{}
	s := New(ex, layout.NewEngine(fonts.NewRegistry()), WithGateway(gw))
	if err := s.Load(context.Background(), twoPages(), "a.pdf"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := s.Save(context.Background(), persist.Report{PolicyNumber: "P-2"})
		done <- err
	}()
	<-ex.started
	one := pdftest.Build(pdftest.Pages(1, pdftest.Letter), pdftest.Options{})
	if err := s.Load(context.Background(), one, "b.pdf"); err != nil {
		t.Fatalf("load during save: %v", err)
	}
	close(ex.release)
	if err := <-done; err != nil {
		t.Fatalf("save: %v", err)
	}

	if gw.name != "a.pdf" || gw.rec.PageCount != 2 {
		t.Fatalf("saved as %q with %d pages", gw.name, gw.rec.PageCount)
	}
	if st := s.State(); st.Name != "b.pdf" || st.PageCount != 1 {
		t.Fatalf("state %+v", st)
	}
}

func TestExportReportsInvalidColor(t *testing.T) {
	s := loaded(t)
	_ = s.SelectTool(PlacingText)
	click(t, s, 10, 10)
	_, _ = s.ConfirmPrompt(PromptInput{Content: "x", Style: annotation.TextStyle{Color: "#ZZZ"}})
	s.Notices()

	out, err := s.Export(context.Background())
	var ce *builder.ColorParseError
	if !errors.As(err, &ce) || out != nil {
		t.Fatalf("got %v, %d bytes", err, len(out))
	}
	n := s.Notices()
	if len(n) != 1 || !strings.Contains(n[0].Message, "#ZZZ") {
		t.Fatalf("notices %+v", n)
	}
}

func pageFonts(t *testing.T, data []byte, page int) map[string]raw.ObjectRef {
	t.Helper()
	doc, err := document.Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	res, err := doc.Resources(page)
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]raw.ObjectRef{}
	if f, ok := res.Get("Font"); ok {
		for name, v := range f.(*raw.DictObj).KV {
			out[name] = v.(raw.RefObj).R
		}
	}
	return out
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := loaded(t)
	_ = s.SelectTool(PlacingText)
	click(t, s, 100, 100)
	if _, err := s.ConfirmPrompt(PromptInput{Content: "Hello", Style: annotation.TextStyle{Family: "Arial"}}); err != nil {
		t.Fatal(err)
	}
	first, err := s.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	before := pageFonts(t, first, 1)

	if err := s.Load(ctx, first, "inspection-annotated.pdf"); err != nil {
		t.Fatalf("reload export: %v", err)
	}
	if st := s.State(); st.PageCount != 2 {
		t.Fatalf("pages = %d", st.PageCount)
	}
	_ = s.SelectTool(PlacingSignature)
	click(t, s, 100, 300)
	if _, err := s.ConfirmPrompt(PromptInput{Content: "J. Doe"}); err != nil {
		t.Fatal(err)
	}
	second, err := s.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	after := pageFonts(t, second, 1)

	for name, ref := range before {
		if after[name] != ref {
			t.Fatalf("font %s was %v, now %v", name, ref, after[name])
		}
	}
	if len(after) != len(before)+1 {
		t.Fatalf("fonts before %v, after %v", before, after)
	}
}

type failingRecorder struct{}

func (failingRecorder) RecordMetadata(context.Context, persist.Record) (string, error) {
	return "", errors.New("database offline")
}

func TestSaveKeepsBlobWhenRecordFails(t *testing.T) {
	dir := t.TempDir()
	store, err := persist.NewFileStore(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	s := loaded(t, WithGateway(persist.Gateway{Store: store, Recorder: failingRecorder{}}))

	url, id, err := s.Save(context.Background(), persist.Report{PolicyNumber: "P-9"})
	var re *persist.RecordError
	if !errors.As(err, &re) || url == "" || id != "" {
		t.Fatalf("save: %q %q %v", url, id, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), "-inspection.pdf") {
		t.Fatalf("stored files %v", entries)
	}
	n := s.Notices()
	if len(n) != 1 || !strings.HasPrefix(n[0].Message, "Save failed") {
		t.Fatalf("notices %+v", n)
	}
}

func TestSave(t *testing.T) {
	db, err := persist.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rec := persist.NewSQLiteRecorder(db)
	store, _ := persist.NewFileStore(t.TempDir(), "https://files.example.com")
	s := loaded(t, WithGateway(persist.Gateway{Store: store, Recorder: rec}))
	_ = s.SelectTool(PlacingTick)
	click(t, s, 50, 50)

	report := persist.Report{InsuredName: "A. Smith", PolicyNumber: "P-1", Address: "1 Main St", DateInspected: "05/17/2024"}
	url, id, err := s.Save(context.Background(), report)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := rec.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	want := persist.Record{ID: id, Report: report, PDFURL: url, PageCount: 2, CreatedAt: fixedNow}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}
	if n := s.Notices(); len(n) != 1 || n[0].Message != "Save succeeded" || n[0].Level != LevelInfo {
		t.Fatalf("notices %+v", n)
	}
}
