package contentstream

import (
	"bytes"
	"fmt"
	"strconv"
)

// Parse reads a content stream back into operations. Inline image data is
// skipped; the BI operator is reported without operands.
func Parse(data []byte) ([]Operation, error) {
	l := &lexer{data: data}
	var ops []Operation
	var stack []Operand
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			if len(stack) > 0 {
				return ops, fmt.Errorf("dangling operands: %d", len(stack))
			}
			return ops, nil
		case tokOperand:
			stack = append(stack, tok.operand)
		case tokOperator:
			if tok.text == "BI" {
				if err := l.skipInlineImage(); err != nil {
					return nil, err
				}
			}
			ops = append(ops, Operation{Operator: tok.text, Operands: stack})
			stack = nil
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, l.pos)
		}
	}
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokOperand
	tokOperator
	tokArrayEnd
	tokDictEnd
)

type token struct {
	kind    tokKind
	text    string
	operand Operand
}

type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool { return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0 }
func isDelim(c byte) bool { return bytes.IndexByte([]byte("()<>[]{}/%"), c) >= 0 }

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		if !isWhite(c) {
			return
		}
		l.pos++
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return token{kind: tokEOF}, nil
	}
	c := l.data[l.pos]
	switch {
	case c == '(':
		s, err := l.literalString()
		return token{kind: tokOperand, operand: StringOperand{Value: s}}, err
	case c == '<' && l.peek(1) == '<':
		l.pos += 2
		d, err := l.dict()
		return token{kind: tokOperand, operand: d}, err
	case c == '>' && l.peek(1) == '>':
		l.pos += 2
		return token{kind: tokDictEnd, text: ">>"}, nil
	case c == '<':
		s, err := l.hexString()
		return token{kind: tokOperand, operand: StringOperand{Value: s, Hex: true}}, err
	case c == '[':
		l.pos++
		a, err := l.array()
		return token{kind: tokOperand, operand: a}, err
	case c == ']':
		l.pos++
		return token{kind: tokArrayEnd, text: "]"}, nil
	case c == '/':
		l.pos++
		return token{kind: tokOperand, operand: NameOperand{Value: l.name()}}, nil
	}
	word := l.word()
	if word == "" {
		l.pos++
		return token{}, fmt.Errorf("unexpected byte %q at offset %d", c, l.pos-1)
	}
	if f, err := strconv.ParseFloat(word, 64); err == nil {
		return token{kind: tokOperand, operand: NumberOperand{Value: f}}, nil
	}
	switch word {
	case "true", "false", "null":
		// keyword operands only occur in marked-content property lists
		return token{kind: tokOperand, operand: NameOperand{Value: word}}, nil
	}
	return token{kind: tokOperator, text: word}, nil
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.data) {
		return l.data[l.pos+off]
	}
	return 0
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) name() string {
	w := l.word()
	if !bytes.ContainsRune([]byte(w), '#') {
		return w
	}
	var b []byte
	for i := 0; i < len(w); i++ {
		if w[i] == '#' && i+2 < len(w) {
			if v, err := strconv.ParseUint(w[i+1:i+3], 16, 8); err == nil {
				b = append(b, byte(v))
				i += 2
				continue
			}
		}
		b = append(b, w[i])
	}
	return string(b)
}

func (l *lexer) literalString() ([]byte, error) {
	l.pos++ // (
	depth := 1
	var out []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
		case '\\':
			if l.pos >= len(l.data) {
				return nil, fmt.Errorf("unterminated escape")
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.peek(0) == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return nil, fmt.Errorf("unterminated string")
}

func (l *lexer) hexString() ([]byte, error) {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if !isWhite(l.data[l.pos]) {
			digits = append(digits, l.data[l.pos])
		}
		l.pos++
	}
	if l.pos >= len(l.data) {
		return nil, fmt.Errorf("unterminated hex string")
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		v, err := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad hex string: %w", err)
		}
		out[i] = byte(v)
	}
	return out, nil
}

func (l *lexer) array() (ArrayOperand, error) {
	var a ArrayOperand
	for {
		tok, err := l.next()
		if err != nil {
			return a, err
		}
		switch tok.kind {
		case tokArrayEnd:
			return a, nil
		case tokOperand:
			a.Values = append(a.Values, tok.operand)
		case tokEOF:
			return a, fmt.Errorf("unterminated array")
		default:
			return a, fmt.Errorf("unexpected %q in array", tok.text)
		}
	}
}

func (l *lexer) dict() (DictOperand, error) {
	d := DictOperand{Values: map[string]Operand{}}
	for {
		tok, err := l.next()
		if err != nil {
			return d, err
		}
		if tok.kind == tokDictEnd {
			return d, nil
		}
		key, ok := tok.operand.(NameOperand)
		if tok.kind != tokOperand || !ok {
			return d, fmt.Errorf("dictionary key must be a name")
		}
		val, err := l.next()
		if err != nil {
			return d, err
		}
		if val.kind != tokOperand {
			return d, fmt.Errorf("missing value for /%s", key.Value)
		}
		d.Values[key.Value] = val.operand
	}
}

// skipInlineImage advances past "ID <data> EI".
func (l *lexer) skipInlineImage() error {
	idx := bytes.Index(l.data[l.pos:], []byte("ID"))
	if idx < 0 {
		return fmt.Errorf("inline image without ID")
	}
	l.pos += idx + 2
	for l.pos < len(l.data) {
		idx := bytes.Index(l.data[l.pos:], []byte("EI"))
		if idx < 0 {
			return fmt.Errorf("inline image without EI")
		}
		end := l.pos + idx
		l.pos = end + 2
		if end > 0 && isWhite(l.data[end-1]) && (l.pos >= len(l.data) || isWhite(l.data[l.pos])) {
			return nil
		}
	}
	return fmt.Errorf("inline image without EI")
}
