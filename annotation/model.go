package annotation

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/wudi/pdfoverlay/coords"
)

// PointKind tags a stroke point.
type PointKind int

const (
	// Begin starts a new path.
	Begin PointKind = iota
	// Draw continues the current path.
	Draw
)

func (k PointKind) String() string {
	if k == Begin {
		return "begin"
	}
	return "draw"
}

// StrokePoint is one captured ink point in viewport space.
type StrokePoint struct {
	At   coords.Point
	Kind PointKind
}

// Stroke is one begin-delimited run of ink points.
type Stroke struct {
	Page   int
	Points []coords.Point
}

// Model owns all annotation state of one document. Collections keep insertion
// order, which is also paint order. Model is not safe for concurrent use.
//
// Mutating an unknown element or a page outside [1, PageCount] is a
// programming error and panics.
type Model struct {
	pageCount  int
	elements   []*Element
	byID       map[string]*Element
	ink        map[int][]StrokePoint
	highlights map[int][]coords.Rect
	newID      func() string
}

// New returns an empty model for a document with pageCount pages.
func New(pageCount int) *Model {
	return &Model{
		pageCount:  pageCount,
		byID:       map[string]*Element{},
		ink:        map[int][]StrokePoint{},
		highlights: map[int][]coords.Rect{},
		newID:      uuid.NewString,
	}
}

// PageCount returns the number of pages of the underlying document.
func (m *Model) PageCount() int { return m.pageCount }

func (m *Model) checkPage(page int) {
	if page < 1 || page > m.pageCount {
		panic(fmt.Sprintf("annotation: page %d out of range [1, %d]", page, m.pageCount))
	}
}

func (m *Model) mustGet(id string) *Element {
	e, ok := m.byID[id]
	if !ok {
		panic(fmt.Sprintf("annotation: unknown element %q", id))
	}
	return e
}

// AddElement places a new element and returns its identifier.
func (m *Model) AddElement(page int, pos coords.Point, payload Payload) string {
	m.checkPage(page)
	if payload == nil {
		panic("annotation: nil payload")
	}
	e := &Element{ID: m.newID(), Page: page, Pos: pos, Payload: payload}
	m.elements = append(m.elements, e)
	m.byID[e.ID] = e
	return e.ID
}

// MoveElement sets a new viewport position. Page and paint order are kept.
func (m *Model) MoveElement(id string, pos coords.Point) {
	m.mustGet(id).Pos = pos
}

// SetContent replaces the typed content of a text, date or signature element.
func (m *Model) SetContent(id, content string) {
	e := m.mustGet(id)
	tl, ok := e.Payload.(TextLike)
	if !ok {
		panic(fmt.Sprintf("annotation: element %s is a %s and has no text content", id, e.Kind()))
	}
	e.Payload = tl.WithText(content)
}

// Element returns a copy of the element with the given id.
func (m *Model) Element(id string) (Element, bool) {
	e, ok := m.byID[id]
	if !ok {
		return Element{}, false
	}
	return *e, true
}

// AddStrokePoint appends one ink point. The first point recorded on a page
// must be a Begin point.
func (m *Model) AddStrokePoint(page int, at coords.Point, kind PointKind) {
	m.checkPage(page)
	if kind != Begin && kind != Draw {
		panic(fmt.Sprintf("annotation: unknown point kind %d", kind))
	}
	if kind == Draw && len(m.ink[page]) == 0 {
		panic(fmt.Sprintf("annotation: draw point on page %d without a preceding begin", page))
	}
	m.ink[page] = append(m.ink[page], StrokePoint{At: at, Kind: kind})
}

// AddHighlight stores a highlight region, normalized to non-negative size.
func (m *Model) AddHighlight(page int, r coords.Rect) {
	m.checkPage(page)
	m.highlights[page] = append(m.highlights[page], r.Normalize())
}

// EraseHighlightsIntersecting removes the highlights on page that lie fully
// inside r and reports how many were removed. Partially overlapping
// highlights are kept.
func (m *Model) EraseHighlightsIntersecting(page int, r coords.Rect) int {
	m.checkPage(page)
	kept := m.highlights[page][:0]
	removed := 0
	for _, h := range m.highlights[page] {
		if r.Contains(h) {
			removed++
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		delete(m.highlights, page)
	} else {
		m.highlights[page] = kept
	}
	return removed
}

// ElementsForPage returns copies of the page's elements in insertion order.
func (m *Model) ElementsForPage(page int) []Element {
	var out []Element
	for _, e := range m.elements {
		if e.Page == page {
			out = append(out, *e)
		}
	}
	return out
}

// Strokes splits the page's ink into begin-delimited runs.
func (m *Model) Strokes(page int) []Stroke {
	var out []Stroke
	for _, p := range m.ink[page] {
		if p.Kind == Begin || len(out) == 0 {
			out = append(out, Stroke{Page: page})
		}
		last := &out[len(out)-1]
		last.Points = append(last.Points, p.At)
	}
	return out
}

// Highlights returns the page's highlight regions in insertion order.
func (m *Model) Highlights(page int) []coords.Rect {
	return append([]coords.Rect(nil), m.highlights[page]...)
}

// AllPages lists, in ascending order, the pages carrying any annotation.
func (m *Model) AllPages() []int {
	set := map[int]bool{}
	for _, e := range m.elements {
		set[e.Page] = true
	}
	for p, pts := range m.ink {
		if len(pts) > 0 {
			set[p] = true
		}
	}
	for p, hs := range m.highlights {
		if len(hs) > 0 {
			set[p] = true
		}
	}
	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Empty reports whether nothing has been annotated.
func (m *Model) Empty() bool { return len(m.AllPages()) == 0 }

// Snapshot returns an independent copy for readers that must not observe
// later mutations. Image bytes are shared; they are never modified in place.
func (m *Model) Snapshot() *Model {
	c := New(m.pageCount)
	c.newID = m.newID
	for _, e := range m.elements {
		cp := *e
		c.elements = append(c.elements, &cp)
		c.byID[cp.ID] = &cp
	}
	for p, pts := range m.ink {
		c.ink[p] = append([]StrokePoint(nil), pts...)
	}
	for p, hs := range m.highlights {
		c.highlights[p] = append([]coords.Rect(nil), hs...)
	}
	return c
}
