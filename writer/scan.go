package writer

import (
	"bytes"
	"regexp"
	"strconv"
)

var startXRefRe = regexp.MustCompile(`startxref\s+(\d+)`)

// LastStartXRef returns the offset named by the last startxref keyword, or 0.
func LastStartXRef(data []byte) int64 {
	matches := startXRefRe.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return 0
	}
	// use last occurrence
	m := matches[len(matches)-1]
	off, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0
	}
	return off
}

var objHeaderRe = regexp.MustCompile(`^\s*\d+\s+\d+\s+obj`)

// UsesXRefStream reports whether the cross-reference section at offset is a
// stream object rather than an "xref" table.
func UsesXRefStream(data []byte, offset int64) bool {
	if offset <= 0 || offset >= int64(len(data)) {
		return false
	}
	rest := data[offset:]
	if bytes.HasPrefix(bytes.TrimLeft(rest, " \t\r\n"), []byte("xref")) {
		return false
	}
	if len(rest) > 64 {
		rest = rest[:64]
	}
	return objHeaderRe.Match(rest)
}
