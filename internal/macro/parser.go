package macro

import (
	"strconv"
	"strings"
)

// Compile converts macro source text into segments.
//
// Compile is total. Unknown directives, directives with a bad argument, a lone
// closing brace and an unclosed opening brace all become literal text.
// Consecutive literal characters, including escaped braces, are merged into a
// single Text segment, so the segment count tracks directives rather than
// characters.
func Compile(text string) []Segment {
	var (
		segments []Segment
		buf      strings.Builder
	)

	flush := func() {
		if buf.Len() > 0 {
			segments = append(segments, Text(buf.String()))
			buf.Reset()
		}
	}

	// Braces are ASCII, so byte scanning never splits a multi-byte rune.
	for i := 0; i < len(text); {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				buf.WriteByte('{')
				i += 2
				continue
			}

			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				buf.WriteString(text[i:])
				i = len(text)
				continue
			}

			body := text[i+1 : i+1+end]
			if seg, ok := parseDirective(body); ok {
				flush()
				segments = append(segments, seg)
			} else {
				buf.WriteString(text[i : i+end+2])
			}
			i += end + 2

		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				i += 2
			} else {
				i++
			}
			buf.WriteByte('}')

		default:
			buf.WriteByte(c)
			i++
		}
	}

	flush()
	return segments
}

// parseDirective interprets the contents between a pair of braces.
func parseDirective(body string) (Segment, bool) {
	name, arg, _ := strings.Cut(body, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "delay":
		// An explicit plus sign is accepted; any other sign is not.
		ms, err := strconv.ParseUint(strings.TrimPrefix(arg, "+"), 10, 64)
		if err != nil {
			return Segment{}, false
		}
		return Delay(ms), true

	case "keydown":
		m, ok := ModifierFromName(arg)
		if !ok {
			return Segment{}, false
		}
		return ModifierDown(m), true

	case "keyup":
		m, ok := ModifierFromName(arg)
		if !ok {
			return Segment{}, false
		}
		return ModifierUp(m), true

	case "paste":
		if arg != "" {
			return Segment{}, false
		}
		return Paste(), true
	}

	k, ok := KeyFromName(body)
	if !ok {
		return Segment{}, false
	}
	return Special(k), true
}

// Format renders segments back into macro source. Literal braces are doubled
// so that Compile(Format(s)) reproduces s for any compiled sequence.
func Format(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Kind {
		case KindText:
			b.WriteString(escapeBraces(s.Text))
		case KindSpecialKey:
			b.WriteString("{" + s.Key.String() + "}")
		case KindDelay:
			b.WriteString("{Delay " + strconv.FormatUint(s.DelayMs, 10) + "}")
		case KindModifierDown:
			b.WriteString("{KeyDown " + s.Modifier.String() + "}")
		case KindModifierUp:
			b.WriteString("{KeyUp " + s.Modifier.String() + "}")
		case KindPaste:
			b.WriteString("{Paste}")
		}
	}
	return b.String()
}

var braceEscaper = strings.NewReplacer("{", "{{", "}", "}}")

func escapeBraces(s string) string {
	return braceEscaper.Replace(s)
}
