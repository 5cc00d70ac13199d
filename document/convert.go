package document

import (
	"encoding/hex"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/wudi/pdfoverlay/ir/raw"
)

// convert copies a pdfcpu object into the writer's object model. Indirect
// references are kept as references.
func convert(o types.Object) raw.Object {
	switch v := o.(type) {
	case nil:
		return raw.NullObj{}
	case types.Name:
		return raw.NameLiteral(string(v))
	case types.Integer:
		return raw.NumberInt(int64(v))
	case types.Float:
		return raw.NumberFloat(float64(v))
	case types.Boolean:
		return raw.Bool(bool(v))
	case types.StringLiteral:
		return raw.Str(unescapeLiteral(string(v)))
	case types.HexLiteral:
		b, _ := stringBytes(v)
		return raw.HexStr(b)
	case types.IndirectRef:
		return raw.Ref(convertRef(v))
	case types.Array:
		arr := raw.NewArray()
		for _, it := range v {
			arr.Append(convert(it))
		}
		return arr
	case types.Dict:
		return convertDict(v)
	}
	return raw.NullObj{}
}

func convertDict(d types.Dict) *raw.DictObj {
	out := raw.Dict()
	for k, v := range d {
		out.Set(k, convert(v))
	}
	return out
}

func stringBytes(o types.Object) ([]byte, bool) {
	switch v := o.(type) {
	case types.StringLiteral:
		return unescapeLiteral(string(v)), true
	case types.HexLiteral:
		s := strings.Map(func(r rune) rune {
			if strings.ContainsRune(" \t\r\n", r) {
				return -1
			}
			return r
		}, string(v))
		if len(s)%2 == 1 {
			s += "0"
		}
		b, err := hex.DecodeString(s)
		return b, err == nil
	}
	return nil, false
}

// unescapeLiteral resolves the escape sequences of a literal string body.
func unescapeLiteral(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch e := s[i]; e {
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
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			if e >= '0' && e <= '7' {
				v := int(e - '0')
				for j := 0; j < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; j++ {
					i++
					v = v*8 + int(s[i]-'0')
				}
				out = append(out, byte(v))
				continue
			}
			out = append(out, e)
		}
	}
	return out
}
