package builder

import (
	"errors"
	"testing"
)

func TestParseColor(t *testing.T) {
	cases := []struct {
		in   string
		want Color
	}{
		{"black", Black},
		{"WHITE", White},
		{"red", Color{R: 1}},
		{"#FF0000", Color{R: 1}},
		{"#f00", Color{R: 1}},
		{"green", Color{G: 1}},
		{"#0000ff", Color{B: 1}},
		{"#336699", Color{R: 0.2, G: 0.4, B: 0.6}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseColor(tc.in)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("parse %q = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseColorNamedMatchesHex(t *testing.T) {
	named, _ := ParseColor("red")
	hex, _ := ParseColor("#FF0000")
	if named != hex {
		t.Fatalf("red %+v != #FF0000 %+v", named, hex)
	}
}

func TestParseColorRejects(t *testing.T) {
	for _, in := range []string{"#ZZZ", "", "#12", "#1234", "purple", "ff0000", "#ggggggg"} {
		_, err := ParseColor(in)
		var perr *ColorParseError
		if !errors.As(err, &perr) {
			t.Fatalf("ParseColor(%q): expected ColorParseError, got %v", in, err)
		}
		if perr.Value != in {
			t.Fatalf("error carries %q, want %q", perr.Value, in)
		}
	}
}

func TestColorRGBA(t *testing.T) {
	c := Color{R: 1, G: 1}.RGBA(0.5)
	if c.R != 255 || c.G != 255 || c.B != 0 || c.A != 128 {
		t.Fatalf("unexpected %+v", c)
	}
}
