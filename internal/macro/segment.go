// Package macro compiles macro source text into an ordered list of segments.
//
// Macro text is plain text interspersed with brace directives:
//
//	Hello{Enter}World          text, special key, text
//	{KeyDown Ctrl}c{KeyUp Ctrl} explicit modifier transitions
//	Wait{Delay 500}Done        inline pause in milliseconds
//	{Paste}                    type the current clipboard text
//	{{literal}}                doubled braces are literal braces
//
// Compilation never fails: anything that is not a recognised directive is
// typed as literal text.
package macro

import (
	"fmt"
	"math"
	"time"
)

// Kind identifies the variant held by a Segment.
type Kind int

const (
	// KindText types a run of literal characters.
	KindText Kind = iota
	// KindSpecialKey presses and releases a named key.
	KindSpecialKey
	// KindDelay pauses playback.
	KindDelay
	// KindModifierDown presses and holds a modifier.
	KindModifierDown
	// KindModifierUp releases a modifier.
	KindModifierUp
	// KindPaste types the current clipboard text.
	KindPaste
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSpecialKey:
		return "key"
	case KindDelay:
		return "delay"
	case KindModifierDown:
		return "keydown"
	case KindModifierUp:
		return "keyup"
	case KindPaste:
		return "paste"
	default:
		return "unknown"
	}
}

// Segment is one atomic compiled unit of a macro. Only the field matching
// Kind is meaningful. Segments are plain values and are never mutated after
// compilation.
type Segment struct {
	Kind     Kind
	Text     string
	Key      Key
	Modifier Modifier
	DelayMs  uint64
}

// Text returns a literal text segment.
func Text(s string) Segment {
	return Segment{Kind: KindText, Text: s}
}

// Special returns a special key segment.
func Special(k Key) Segment {
	return Segment{Kind: KindSpecialKey, Key: k}
}

// Delay returns a pause segment of ms milliseconds.
func Delay(ms uint64) Segment {
	return Segment{Kind: KindDelay, DelayMs: ms}
}

// ModifierDown returns a segment that presses and holds m.
func ModifierDown(m Modifier) Segment {
	return Segment{Kind: KindModifierDown, Modifier: m}
}

// ModifierUp returns a segment that releases m.
func ModifierUp(m Modifier) Segment {
	return Segment{Kind: KindModifierUp, Modifier: m}
}

// Paste returns a clipboard paste segment.
func Paste() Segment {
	return Segment{Kind: KindPaste}
}

// maxDelayMs is the largest millisecond count a time.Duration can hold.
const maxDelayMs = uint64(math.MaxInt64 / int64(time.Millisecond))

// Duration returns the pause length of a delay segment, zero otherwise.
// Delays too long for a time.Duration saturate at math.MaxInt64.
func (s Segment) Duration() time.Duration {
	if s.Kind != KindDelay {
		return 0
	}
	if s.DelayMs > maxDelayMs {
		return math.MaxInt64
	}
	return time.Duration(s.DelayMs) * time.Millisecond
}

// String returns a debug rendering such as Text("hi") or Key(Enter).
func (s Segment) String() string {
	switch s.Kind {
	case KindText:
		return fmt.Sprintf("Text(%q)", s.Text)
	case KindSpecialKey:
		return fmt.Sprintf("Key(%s)", s.Key)
	case KindDelay:
		return fmt.Sprintf("Delay(%d)", s.DelayMs)
	case KindModifierDown:
		return fmt.Sprintf("KeyDown(%s)", s.Modifier)
	case KindModifierUp:
		return fmt.Sprintf("KeyUp(%s)", s.Modifier)
	case KindPaste:
		return "Paste"
	default:
		return "Unknown"
	}
}

// HasDelay reports whether any segment is an inline delay.
func HasDelay(segments []Segment) bool {
	for _, s := range segments {
		if s.Kind == KindDelay {
			return true
		}
	}
	return false
}

// TotalDelay sums the inline delays of segments.
func TotalDelay(segments []Segment) time.Duration {
	var total time.Duration
	for _, s := range segments {
		d := s.Duration()
		if total > math.MaxInt64-d {
			return math.MaxInt64
		}
		total += d
	}
	return total
}
