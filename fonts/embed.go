package fonts

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/wudi/pdfoverlay/ir/raw"
)

func trueTypeObjects(face *Face, fontRef raw.ObjectRef, alloc func() raw.ObjectRef, used *GlyphSet) (map[raw.ObjectRef]raw.Object, error) {
	if used == nil {
		used = NewGlyphSet()
	}
	cidRef, descRef, fileRef, cmapRef := alloc(), alloc(), alloc(), alloc()
	objects := make(map[raw.ObjectRef]raw.Object, 5)

	file, err := raw.NewFlateStream(raw.Dict(), face.data)
	if err != nil {
		return nil, fmt.Errorf("compress font program: %w", err)
	}
	file.Dict.Set("Length1", raw.NumberInt(int64(len(face.data))))
	objects[fileRef] = file

	desc := raw.Dict()
	desc.Set("Type", raw.NameLiteral("FontDescriptor"))
	desc.Set("FontName", raw.NameLiteral(face.Name))
	desc.Set("Flags", raw.NumberInt(descriptorFlags(face)))
	desc.Set("FontBBox", raw.Rect(face.BBox[0], face.BBox[1], face.BBox[2], face.BBox[3]))
	desc.Set("ItalicAngle", raw.Number(face.ItalicAngle))
	desc.Set("Ascent", raw.Number(face.Ascent))
	desc.Set("Descent", raw.Number(face.Descent))
	desc.Set("CapHeight", raw.Number(face.CapHeight))
	desc.Set("StemV", raw.NumberInt(80))
	desc.Set("FontFile2", raw.Ref(fileRef))
	objects[descRef] = desc

	info := raw.Dict()
	info.Set("Registry", raw.Str([]byte("Adobe")))
	info.Set("Ordering", raw.Str([]byte("Identity")))
	info.Set("Supplement", raw.NumberInt(0))

	cid := raw.Dict()
	cid.Set("Type", raw.NameLiteral("Font"))
	cid.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	cid.Set("BaseFont", raw.NameLiteral(face.Name))
	cid.Set("CIDSystemInfo", info)
	cid.Set("FontDescriptor", raw.Ref(descRef))
	cid.Set("CIDToGIDMap", raw.NameLiteral("Identity"))
	cid.Set("DW", raw.NumberInt(int64(face.GlyphWidth(0))))
	cid.Set("W", encodeCIDWidths(used.Widths))
	objects[cidRef] = cid

	cmap, err := raw.NewFlateStream(raw.Dict(), buildToUnicodeCMap(face.Name, used.Runes))
	if err != nil {
		return nil, fmt.Errorf("compress ToUnicode: %w", err)
	}
	objects[cmapRef] = cmap

	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	font.Set("Subtype", raw.NameLiteral("Type0"))
	font.Set("BaseFont", raw.NameLiteral(face.Name))
	font.Set("Encoding", raw.NameLiteral("Identity-H"))
	font.Set("DescendantFonts", raw.NewArray(raw.Ref(cidRef)))
	font.Set("ToUnicode", raw.Ref(cmapRef))
	objects[fontRef] = font
	return objects, nil
}

// descriptorFlags marks the face nonsymbolic, and italic when slanted.
func descriptorFlags(face *Face) int64 {
	flags := int64(1 << 5)
	if face.ItalicAngle != 0 {
		flags |= 1 << 6
	}
	return flags
}

func encodeCIDWidths(widths map[int]int) *raw.ArrayObj {
	arr := raw.NewArray()
	if len(widths) == 0 {
		return arr
	}
	codes := make([]int, 0, len(widths))
	for c := range widths {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	start, prev, current := codes[0], codes[0], widths[codes[0]]
	flush := func() {
		arr.Append(raw.NumberInt(int64(start)), raw.NumberInt(int64(prev)), raw.NumberInt(int64(current)))
	}
	for _, code := range codes[1:] {
		w := widths[code]
		if w == current && code == prev+1 {
			prev = code
			continue
		}
		flush()
		start, prev, current = code, code, w
	}
	flush()
	return arr
}

func buildToUnicodeCMap(name string, toUnicode map[int][]rune) []byte {
	keys := make([]int, 0, len(toUnicode))
	for cid := range toUnicode {
		keys = append(keys, cid)
	}
	sort.Ints(keys)

	var buf bytes.Buffer
	buf.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	buf.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	fmt.Fprintf(&buf, "/CMapName /%s-UTF16 def\n/CMapType 2 def\n", raw.EscapeName(name))
	buf.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for i := 0; i < len(keys); {
		chunk := len(keys) - i
		if chunk > 100 {
			chunk = 100
		}
		fmt.Fprintf(&buf, "%d beginbfchar\n", chunk)
		for _, cid := range keys[i : i+chunk] {
			fmt.Fprintf(&buf, "<%04X> <%s>\n", cid, utf16Hex(toUnicode[cid]))
		}
		buf.WriteString("endbfchar\n")
		i += chunk
	}
	buf.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return buf.Bytes()
}

func utf16Hex(runes []rune) string {
	var b bytes.Buffer
	for _, u := range utf16.Encode(runes) {
		fmt.Fprintf(&b, "%04X", u)
	}
	return b.String()
}
