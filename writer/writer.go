// Package writer appends an incremental update to an existing PDF: new and
// replaced objects, a cross-reference section and a trailer pointing back to
// the previous one with /Prev. The original bytes are never rewritten.
package writer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfoverlay/ir/raw"
)

// Trailer carries what the update needs from the original trailer.
type Trailer struct {
	Size int
	Root raw.ObjectRef
	Info *raw.ObjectRef
	ID   [2][]byte
	// Prev is the byte offset of the original cross-reference section.
	Prev int64
}

// Incremental collects the objects of one update. It is not safe for
// concurrent use.
type Incremental struct {
	base       []byte
	trailer    Trailer
	xrefStream bool
	next       int
	objects    map[raw.ObjectRef]raw.Object
	reserved   map[raw.ObjectRef]bool
}

// ErrUnresolvedReservation is returned by Write when a reserved object number
// was never given an object.
var ErrUnresolvedReservation = errors.New("reserved object was never set")

// NewIncremental starts an update of base. When xrefStream is set the update
// ends in a cross-reference stream instead of a classic table, matching
// files whose own cross-reference data is stored that way.
func NewIncremental(base []byte, t Trailer, xrefStream bool) *Incremental {
	next := t.Size
	if next < 1 {
		next = 1
	}
	return &Incremental{
		base:       base,
		trailer:    t,
		xrefStream: xrefStream,
		next:       next,
		objects:    map[raw.ObjectRef]raw.Object{},
		reserved:   map[raw.ObjectRef]bool{},
	}
}

// Reserve allocates an object number to be filled in later with Set.
func (w *Incremental) Reserve() raw.ObjectRef {
	ref := raw.ObjectRef{Num: w.next}
	w.next++
	w.reserved[ref] = true
	return ref
}

// Add appends a new object and returns its reference.
func (w *Incremental) Add(obj raw.Object) raw.ObjectRef {
	ref := raw.ObjectRef{Num: w.next}
	w.next++
	w.objects[ref] = obj
	return ref
}

// Set stores obj under ref. ref may be a reservation or an object of the
// original file, which the update then supersedes.
func (w *Incremental) Set(ref raw.ObjectRef, obj raw.Object) {
	delete(w.reserved, ref)
	w.objects[ref] = obj
}

// Len reports the number of objects in the update.
func (w *Incremental) Len() int { return len(w.objects) }

// Size is the /Size of the updated file.
func (w *Incremental) Size() int {
	if w.next > w.trailer.Size {
		return w.next
	}
	return w.trailer.Size
}

// Write emits the original bytes followed by the update.
func (w *Incremental) Write(out io.Writer) (int64, error) {
	if len(w.reserved) > 0 {
		return 0, fmt.Errorf("%w: %d object(s)", ErrUnresolvedReservation, len(w.reserved))
	}
	var buf bytes.Buffer
	buf.Write(w.base)
	if n := len(w.base); n > 0 && w.base[n-1] != '\n' && w.base[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	refs := make([]raw.ObjectRef, 0, len(w.objects))
	for ref := range w.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })

	offsets := make(map[int]int64, len(refs)+1)
	gens := make(map[int]int, len(refs)+1)
	for _, ref := range refs {
		offsets[ref.Num] = int64(buf.Len())
		gens[ref.Num] = ref.Gen
		buf.Write(raw.SerializeIndirect(ref, w.objects[ref]))
	}

	ids := w.fileID(buf.Bytes())
	var err error
	if w.xrefStream {
		err = w.writeXRefStream(&buf, offsets, gens, ids)
	} else {
		w.writeXRefTable(&buf, offsets, gens, ids)
	}
	if err != nil {
		return 0, err
	}
	n, err := out.Write(buf.Bytes())
	return int64(n), err
}

// fileID keeps the permanent half of the original identifier and derives a
// fresh changing half from the updated content.
func (w *Incremental) fileID(content []byte) [2][]byte {
	sum := blake2b.Sum256(content)
	changing := append([]byte(nil), sum[:16]...)
	permanent := w.trailer.ID[0]
	if len(permanent) == 0 {
		permanent = changing
	}
	return [2][]byte{permanent, changing}
}

func (w *Incremental) trailerDict(size int, ids [2][]byte) *raw.DictObj {
	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(int64(size)))
	trailer.Set("Root", raw.Ref(w.trailer.Root))
	if w.trailer.Info != nil {
		trailer.Set("Info", raw.Ref(*w.trailer.Info))
	}
	trailer.Set("ID", raw.NewArray(raw.HexStr(ids[0]), raw.HexStr(ids[1])))
	if w.trailer.Prev > 0 {
		trailer.Set("Prev", raw.NumberInt(w.trailer.Prev))
	}
	return trailer
}

func (w *Incremental) writeXRefTable(buf *bytes.Buffer, offsets map[int]int64, gens map[int]int, ids [2][]byte) {
	xrefOffset := buf.Len()
	buf.WriteString("xref\n")
	buf.WriteString("0 1\n0000000000 65535 f \n")
	for _, run := range subsections(offsets) {
		fmt.Fprintf(buf, "%d %d\n", run[0], run[1])
		for num := run[0]; num < run[0]+run[1]; num++ {
			fmt.Fprintf(buf, "%010d %05d n \n", offsets[num], gens[num])
		}
	}
	buf.WriteString("trailer\n")
	buf.Write(raw.Serialize(w.trailerDict(w.Size(), ids)))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
}

func (w *Incremental) writeXRefStream(buf *bytes.Buffer, offsets map[int]int64, gens map[int]int, ids [2][]byte) error {
	xrefRef := raw.ObjectRef{Num: w.Size()}
	xrefOffset := int64(buf.Len())
	offsets[xrefRef.Num] = xrefOffset
	gens[xrefRef.Num] = 0

	index, entries := xrefStreamIndexAndEntries(offsets, gens)
	dict := w.trailerDict(xrefRef.Num+1, ids)
	dict.Set("Type", raw.NameLiteral("XRef"))
	dict.Set("W", raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
	dict.Set("Index", index)
	stream, err := raw.NewFlateStream(dict, entries)
	if err != nil {
		return fmt.Errorf("compress xref stream: %w", err)
	}
	buf.Write(raw.SerializeIndirect(xrefRef, stream))
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return nil
}

// subsections groups object numbers into contiguous [start, count] runs.
func subsections(offsets map[int]int64) [][2]int {
	keys := make([]int, 0, len(offsets))
	for k := range offsets {
		if k > 0 {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	var runs [][2]int
	for _, k := range keys {
		if n := len(runs); n > 0 && runs[n-1][0]+runs[n-1][1] == k {
			runs[n-1][1]++
			continue
		}
		runs = append(runs, [2]int{k, 1})
	}
	return runs
}

func xrefStreamIndexAndEntries(offsets map[int]int64, gens map[int]int) (*raw.ArrayObj, []byte) {
	indexArr := raw.NewArray(raw.NumberInt(0), raw.NumberInt(1))
	entries := appendXRefStreamEntry(nil, 0, 0, 65535)
	for _, run := range subsections(offsets) {
		indexArr.Append(raw.NumberInt(int64(run[0])), raw.NumberInt(int64(run[1])))
		for num := run[0]; num < run[0]+run[1]; num++ {
			entries = appendXRefStreamEntry(entries, 1, offsets[num], gens[num])
		}
	}
	return indexArr, entries
}

func appendXRefStreamEntry(buf []byte, typ int, field2 int64, gen int) []byte {
	buf = append(buf, byte(typ))
	offset := uint32(field2)
	buf = append(buf, byte(offset>>24), byte(offset>>16), byte(offset>>8), byte(offset))
	buf = append(buf, byte(gen>>8), byte(gen))
	return buf
}
