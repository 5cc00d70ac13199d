// Package pdftest generates small, valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wudi/pdfoverlay/ir/raw"
)

// Page describes one generated page.
type Page struct {
	Width, Height float64
	Rotate        int
	// Origin offsets the MediaBox lower-left corner.
	OriginX, OriginY float64
}

// Options controls the file layout.
type Options struct {
	XRefStream bool
	// InheritMediaBox puts the first page's MediaBox on the page tree root
	// instead of on each page.
	InheritMediaBox bool
}

// Letter is a US Letter portrait page.
var Letter = Page{Width: 612, Height: 792}

// Build returns a PDF with the given pages. Each page shows "Page N" in
// Helvetica through the resource name F1.
func Build(pages []Page, opts Options) []byte {
	objects := map[int]raw.Object{}
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(raw.ObjectRef{Num: 2}))
	objects[1] = catalog

	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	font.Set("Subtype", raw.NameLiteral("Type1"))
	font.Set("BaseFont", raw.NameLiteral("Helvetica"))
	objects[3] = font

	info := raw.Dict()
	info.Set("Producer", raw.Str([]byte("pdftest")))
	objects[4] = info

	kids := raw.NewArray()
	next := 5
	for i, p := range pages {
		pageNum, contentNum := next, next+1
		next += 2
		content := fmt.Sprintf("BT /F1 12 Tf %s %s Td (Page %d) Tj ET",
			raw.FormatReal(p.OriginX+72), raw.FormatReal(p.OriginY+72), i+1)
		objects[contentNum] = raw.NewStream(raw.Dict(), []byte(content))

		fonts := raw.Dict()
		fonts.Set("F1", raw.Ref(raw.ObjectRef{Num: 3}))
		res := raw.Dict()
		res.Set("Font", fonts)

		page := raw.Dict()
		page.Set("Type", raw.NameLiteral("Page"))
		page.Set("Parent", raw.Ref(raw.ObjectRef{Num: 2}))
		if !opts.InheritMediaBox {
			page.Set("MediaBox", mediaBox(p))
		}
		if p.Rotate != 0 {
			page.Set("Rotate", raw.NumberInt(int64(p.Rotate)))
		}
		page.Set("Resources", res)
		page.Set("Contents", raw.Ref(raw.ObjectRef{Num: contentNum}))
		objects[pageNum] = page
		kids.Append(raw.Ref(raw.ObjectRef{Num: pageNum}))
	}
	tree := raw.Dict()
	tree.Set("Type", raw.NameLiteral("Pages"))
	tree.Set("Kids", kids)
	tree.Set("Count", raw.NumberInt(int64(len(pages))))
	if opts.InheritMediaBox && len(pages) > 0 {
		tree.Set("MediaBox", mediaBox(pages[0]))
	}
	objects[2] = tree

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	nums := make([]int, 0, len(objects))
	for n := range objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	offsets := make([]int, next+1)
	for _, n := range nums {
		offsets[n] = buf.Len()
		buf.Write(raw.SerializeIndirect(raw.ObjectRef{Num: n}, objects[n]))
	}

	id := []byte("0123456789abcdef")
	trailer := raw.Dict()
	trailer.Set("Root", raw.Ref(raw.ObjectRef{Num: 1}))
	trailer.Set("Info", raw.Ref(raw.ObjectRef{Num: 4}))
	trailer.Set("ID", raw.NewArray(raw.HexStr(id), raw.HexStr(id)))

	xrefOffset := buf.Len()
	if opts.XRefStream {
		xrefNum := next
		offsets[xrefNum] = xrefOffset
		var entries []byte
		entries = append(entries, 0, 0, 0, 0, 0, 0xFF, 0xFF)
		for n := 1; n <= xrefNum; n++ {
			off := uint32(offsets[n])
			entries = append(entries, 1, byte(off>>24), byte(off>>16), byte(off>>8), byte(off), 0, 0)
		}
		trailer.Set("Type", raw.NameLiteral("XRef"))
		trailer.Set("Size", raw.NumberInt(int64(xrefNum+1)))
		trailer.Set("W", raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
		buf.Write(raw.SerializeIndirect(raw.ObjectRef{Num: xrefNum}, raw.NewStream(trailer, entries)))
	} else {
		fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", next)
		for n := 1; n < next; n++ {
			fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
		}
		trailer.Set("Size", raw.NumberInt(int64(next)))
		buf.WriteString("trailer\n")
		buf.Write(raw.Serialize(trailer))
		buf.WriteString("\n")
	}
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func mediaBox(p Page) *raw.ArrayObj {
	return raw.Rect(p.OriginX, p.OriginY, p.OriginX+p.Width, p.OriginY+p.Height)
}

// Pages repeats p n times.
func Pages(n int, p Page) []Page {
	out := make([]Page, n)
	for i := range out {
		out[i] = p
	}
	return out
}
