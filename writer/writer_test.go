package writer

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/wudi/pdfoverlay/internal/pdftest"
	"github.com/wudi/pdfoverlay/ir/raw"
)

func baseTrailer(data []byte) Trailer {
	info := raw.ObjectRef{Num: 4}
	return Trailer{
		Size: 7,
		Root: raw.ObjectRef{Num: 1},
		Info: &info,
		ID:   [2][]byte{[]byte("0123456789abcdef"), []byte("0123456789abcdef")},
		Prev: LastStartXRef(data),
	}
}

func TestIncrementalTableUpdate(t *testing.T) {
	base := pdftest.Build([]pdftest.Page{pdftest.Letter}, pdftest.Options{})
	w := NewIncremental(base, baseTrailer(base), false)

	content := w.Add(raw.NewStream(raw.Dict(), []byte("q Q")))
	if content.Num != 7 {
		t.Fatalf("new objects should start at the original size, got %d", content.Num)
	}
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Contents", raw.Ref(content))
	w.Set(raw.ObjectRef{Num: 5}, page)

	var out bytes.Buffer
	if _, err := w.Write(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := out.Bytes()
	if !bytes.HasPrefix(data, base) {
		t.Fatalf("original bytes must be preserved")
	}

	xref := LastStartXRef(data)
	if !bytes.HasPrefix(data[xref:], []byte("xref\n0 1\n")) {
		t.Fatalf("startxref does not point at the new table: %q", data[xref:xref+10])
	}
	tail := string(data[xref:])
	for _, want := range []string{"5 1\n", "7 1\n", fmt.Sprintf("/Prev %d", LastStartXRef(base)), "/Size 8", "/Root 1 0 R", "/Info 4 0 R"} {
		if !strings.Contains(tail, want) {
			t.Fatalf("update section missing %q:\n%s", want, tail)
		}
	}

	// every offset in the new table points at the object it names
	entry := regexp.MustCompile(`(?m)^(\d+) 1\n(\d{10}) 00000 n `)
	for _, m := range entry.FindAllStringSubmatch(tail, -1) {
		off, _ := strconv.Atoi(m[2])
		if !bytes.HasPrefix(data[off:], []byte(m[1]+" 0 obj")) {
			t.Fatalf("offset %d does not start object %s", off, m[1])
		}
	}
}

func TestIncrementalXRefStream(t *testing.T) {
	base := pdftest.Build([]pdftest.Page{pdftest.Letter}, pdftest.Options{XRefStream: true})
	if !UsesXRefStream(base, LastStartXRef(base)) {
		t.Fatalf("generated file should use an xref stream")
	}
	tr := baseTrailer(base)
	tr.Size = 8
	w := NewIncremental(base, tr, true)
	ref := w.Add(raw.NewStream(raw.Dict(), []byte("q Q")))

	var out bytes.Buffer
	if _, err := w.Write(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := out.Bytes()
	xref := LastStartXRef(data)
	if !UsesXRefStream(data, xref) {
		t.Fatalf("update should end in an xref stream")
	}
	header := fmt.Sprintf("%d 0 obj", ref.Num+1)
	if !bytes.HasPrefix(data[xref:], []byte(header)) {
		t.Fatalf("expected %q at startxref", header)
	}

	start := bytes.Index(data[xref:], []byte("stream\n")) + len("stream\n")
	end := bytes.Index(data[xref:], []byte("\nendstream"))
	zr, err := zlib.NewReader(bytes.NewReader(data[xref:][start:end]))
	if err != nil {
		t.Fatalf("zlib: %v", err)
	}
	entries, _ := io.ReadAll(zr)
	// free head plus the content stream and the xref stream itself
	if len(entries) != 3*7 {
		t.Fatalf("unexpected entry bytes %d", len(entries))
	}
	off := int(entries[8])<<24 | int(entries[9])<<16 | int(entries[10])<<8 | int(entries[11])
	if !bytes.HasPrefix(data[off:], []byte(fmt.Sprintf("%d 0 obj", ref.Num))) {
		t.Fatalf("stream entry offset %d is wrong", off)
	}
}

func TestIncrementalReservations(t *testing.T) {
	base := pdftest.Build([]pdftest.Page{pdftest.Letter}, pdftest.Options{})
	w := NewIncremental(base, baseTrailer(base), false)
	ref := w.Reserve()
	if _, err := w.Write(io.Discard); !errors.Is(err, ErrUnresolvedReservation) {
		t.Fatalf("expected reservation error, got %v", err)
	}
	w.Set(ref, raw.NumberInt(1))
	if _, err := w.Write(io.Discard); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFileIDKeepsPermanentHalf(t *testing.T) {
	w := NewIncremental(nil, Trailer{ID: [2][]byte{[]byte("perm"), []byte("old")}}, false)
	ids := w.fileID([]byte("content"))
	if string(ids[0]) != "perm" || len(ids[1]) != 16 || string(ids[1]) == "old" {
		t.Fatalf("unexpected ids %q", ids)
	}
}

func TestLastStartXRef(t *testing.T) {
	data := []byte("startxref\n10\n%%EOF\nstartxref\n 42\n%%EOF")
	if got := LastStartXRef(data); got != 42 {
		t.Fatalf("got %d", got)
	}
	if LastStartXRef([]byte("nothing")) != 0 {
		t.Fatalf("expected 0")
	}
}
