package annotation

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfoverlay/coords"
)

func sequentialIDs(m *Model) {
	n := 0
	m.newID = func() string {
		n++
		return string(rune('a' + n - 1))
	}
}

func TestAddElementPreservesOrder(t *testing.T) {
	m := New(2)
	sequentialIDs(m)
	a := m.AddElement(1, coords.Point{X: 10, Y: 20}, Text{Content: "first"})
	m.AddElement(2, coords.Point{X: 1, Y: 1}, Tick{})
	c := m.AddElement(1, coords.Point{X: -5, Y: 900}, Cross{})

	got := m.ElementsForPage(1)
	if len(got) != 2 || got[0].ID != a || got[1].ID != c {
		t.Fatalf("unexpected page 1 elements: %+v", got)
	}
	if got[1].Pos != (coords.Point{X: -5, Y: 900}) {
		t.Fatalf("position should not be clamped: %+v", got[1].Pos)
	}
	if diff := cmp.Diff([]int{1, 2}, m.AllPages()); diff != "" {
		t.Fatalf("all pages (-want +got):\n%s", diff)
	}
}

func TestMoveAndSetContentKeepIdentity(t *testing.T) {
	m := New(1)
	id := m.AddElement(1, coords.Point{X: 10, Y: 10}, Date{Content: "01/02/2026", Style: TextStyle{Size: 12}})
	m.MoveElement(id, coords.Point{X: 40, Y: 50})
	m.SetContent(id, "12/31/2026")

	e, ok := m.Element(id)
	if !ok {
		t.Fatalf("element missing")
	}
	want := Element{ID: id, Page: 1, Pos: coords.Point{X: 40, Y: 50}, Payload: Date{Content: "12/31/2026", Style: TextStyle{Size: 12}}}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Fatalf("element (-want +got):\n%s", diff)
	}
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestProgrammingErrorsPanic(t *testing.T) {
	m := New(1)
	shape := m.AddElement(1, coords.Point{}, Shape{Width: 60, Height: 60})
	expectPanic(t, "unknown id", func() { m.MoveElement("missing", coords.Point{}) })
	expectPanic(t, "page out of range", func() { m.AddElement(2, coords.Point{}, Tick{}) })
	expectPanic(t, "nil payload", func() { m.AddElement(1, coords.Point{}, nil) })
	expectPanic(t, "content on shape", func() { m.SetContent(shape, "x") })
	expectPanic(t, "draw without begin", func() { m.AddStrokePoint(1, coords.Point{}, Draw) })
}

func TestStrokesSplitOnBegin(t *testing.T) {
	m := New(1)
	pts := []StrokePoint{
		{coords.Point{X: 0, Y: 0}, Begin},
		{coords.Point{X: 1, Y: 1}, Draw},
		{coords.Point{X: 2, Y: 2}, Draw},
		{coords.Point{X: 5, Y: 5}, Begin},
		{coords.Point{X: 6, Y: 6}, Draw},
	}
	for _, p := range pts {
		m.AddStrokePoint(1, p.At, p.Kind)
	}
	strokes := m.Strokes(1)
	if len(strokes) != 2 || len(strokes[0].Points) != 3 || len(strokes[1].Points) != 2 {
		t.Fatalf("unexpected strokes: %+v", strokes)
	}
	want := []coords.Point{pts[0].At, pts[1].At, pts[2].At}
	if diff := cmp.Diff(want, strokes[0].Points); diff != "" {
		t.Fatalf("first stroke (-want +got):\n%s", diff)
	}
}

func TestEraseRequiresFullContainment(t *testing.T) {
	m := New(1)
	m.AddHighlight(1, coords.Rect{X: 60, Y: 60, W: -50, H: -50})
	if got := m.Highlights(1); got[0] != (coords.Rect{X: 10, Y: 10, W: 50, H: 50}) {
		t.Fatalf("highlight not normalized: %+v", got)
	}
	if n := m.EraseHighlightsIntersecting(1, coords.Rect{X: 0, Y: 0, W: 40, H: 40}); n != 0 {
		t.Fatalf("partial overlap removed %d", n)
	}
	if n := m.EraseHighlightsIntersecting(1, coords.Rect{X: 0, Y: 0, W: 100, H: 100}); n != 1 {
		t.Fatalf("full containment removed %d", n)
	}
	if len(m.Highlights(1)) != 0 || !m.Empty() {
		t.Fatalf("highlight should be gone")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	m := New(1)
	id := m.AddElement(1, coords.Point{X: 1, Y: 1}, Text{Content: "a"})
	m.AddHighlight(1, coords.Rect{W: 5, H: 5})
	snap := m.Snapshot()

	m.MoveElement(id, coords.Point{X: 9, Y: 9})
	m.AddStrokePoint(1, coords.Point{}, Begin)
	m.EraseHighlightsIntersecting(1, coords.Rect{W: 10, H: 10})

	e, _ := snap.Element(id)
	if e.Pos != (coords.Point{X: 1, Y: 1}) || len(snap.Highlights(1)) != 1 || len(snap.Strokes(1)) != 0 {
		t.Fatalf("snapshot observed later mutation")
	}
}
