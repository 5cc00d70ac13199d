package builder

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color is an RGB color with components in [0, 1].
type Color struct {
	R, G, B float64
}

var (
	Black = Color{}
	White = Color{R: 1, G: 1, B: 1}
)

var namedColors = map[string]Color{
	"black": Black,
	"white": White,
	"red":   {R: 1},
	"green": {G: 1},
	"blue":  {B: 1},
}

// ColorParseError reports a color string that is neither a known name nor a
// 3- or 6-digit hex value.
type ColorParseError struct {
	Value string
}

func (e *ColorParseError) Error() string {
	return fmt.Sprintf("invalid color %q: want black, white, red, green, blue, #rgb or #rrggbb", e.Value)
}

// ParseColor resolves a named color or a #rgb / #rrggbb hex string. Names are
// case-insensitive.
func ParseColor(s string) (Color, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[v]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(v, "#")
	if !ok {
		return Color{}, &ColorParseError{Value: s}
	}
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
	default:
		return Color{}, &ColorParseError{Value: s}
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, &ColorParseError{Value: s}
	}
	return Color{
		R: float64(n>>16&0xff) / 255,
		G: float64(n>>8&0xff) / 255,
		B: float64(n&0xff) / 255,
	}, nil
}

// RGBA converts to an 8-bit color with the given opacity in [0, 1].
func (c Color) RGBA(opacity float64) color.NRGBA {
	to8 := func(f float64) uint8 {
		if f <= 0 {
			return 0
		}
		if f >= 1 {
			return 255
		}
		return uint8(f*255 + 0.5)
	}
	return color.NRGBA{R: to8(c.R), G: to8(c.G), B: to8(c.B), A: to8(opacity)}
}
