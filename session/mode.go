package session

import (
	"fmt"
	"strings"

	"github.com/wudi/pdfoverlay/annotation"
)

// Mode is the active tool. At most one is active at a time.
type Mode int

const (
	None Mode = iota
	PlacingText
	PlacingImage
	PlacingDate
	PlacingSignature
	PlacingTick
	PlacingCross
	PlacingShape
	Drawing
	Highlighting
	Erasing
)

var modeNames = [...]string{
	None:             "none",
	PlacingText:      "text",
	PlacingImage:     "image",
	PlacingDate:      "date",
	PlacingSignature: "signature",
	PlacingTick:      "tick",
	PlacingCross:     "cross",
	PlacingShape:     "shape",
	Drawing:          "draw",
	Highlighting:     "highlight",
	Erasing:          "erase",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps a tool name as printed by String back to a Mode.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return None, fmt.Errorf("unknown tool %q", s)
}

// Placing reports whether m places one element on the next click.
func (m Mode) Placing() bool { return m >= PlacingText && m <= PlacingShape }

// placedKind is the element variant a placing mode creates.
func (m Mode) placedKind() annotation.Kind {
	switch m {
	case PlacingText:
		return annotation.KindText
	case PlacingImage:
		return annotation.KindImage
	case PlacingDate:
		return annotation.KindDate
	case PlacingSignature:
		return annotation.KindSignature
	case PlacingTick:
		return annotation.KindTick
	case PlacingCross:
		return annotation.KindCross
	case PlacingShape:
		return annotation.KindShape
	}
	panic(fmt.Sprintf("session: %s does not place elements", m))
}
