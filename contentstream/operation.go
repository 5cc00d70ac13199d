// Package contentstream models page content operators: building them,
// serializing them and reading them back.
package contentstream

import (
	"bytes"
	"sort"

	"github.com/wudi/pdfoverlay/ir/raw"
)

// Operation is one content-stream operator with its operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Operand is a type-safe operand value.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

// StringOperand holds raw string bytes; Hex selects the <...> form on output.
type StringOperand struct {
	Value []byte
	Hex   bool
}

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

type DictOperand struct{ Values map[string]Operand }

func (DictOperand) operand()     {}
func (DictOperand) Type() string { return "dict" }

// Op builds an operation whose operands are all numbers.
func Op(operator string, nums ...float64) Operation {
	ops := make([]Operand, len(nums))
	for i, n := range nums {
		ops[i] = NumberOperand{Value: n}
	}
	return Operation{Operator: operator, Operands: ops}
}

// Numbers returns the numeric operands of op, skipping any other kind.
func (op Operation) Numbers() []float64 {
	out := make([]float64, 0, len(op.Operands))
	for _, o := range op.Operands {
		if n, ok := o.(NumberOperand); ok {
			out = append(out, n.Value)
		}
	}
	return out
}

// Serialize writes operations one per line, operands first.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		for i, operand := range op.Operands {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(&buf, operand)
		}
		if len(op.Operands) > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeOperand(buf *bytes.Buffer, op Operand) {
	switch v := op.(type) {
	case NumberOperand:
		buf.WriteString(raw.FormatReal(v.Value))
	case NameOperand:
		buf.WriteString("/" + raw.EscapeName(v.Value))
	case StringOperand:
		if v.Hex {
			buf.Write(raw.Serialize(raw.HexStr(v.Value)))
		} else {
			buf.Write(raw.EscapeLiteralString(v.Value))
		}
	case ArrayOperand:
		buf.WriteByte('[')
		for i, it := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(buf, it)
		}
		buf.WriteByte(']')
	case DictOperand:
		keys := make([]string, 0, len(v.Values))
		for k := range v.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<<")
		for _, k := range keys {
			buf.WriteString("/" + raw.EscapeName(k) + " ")
			writeOperand(buf, v.Values[k])
		}
		buf.WriteString(">>")
	default:
		buf.WriteString("null")
	}
}
