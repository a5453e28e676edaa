package macro

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{"empty", "", nil},
		{"plain text", "Hello World", []Segment{Text("Hello World")}},
		{
			"text and enter",
			"Hello{Enter}World",
			[]Segment{Text("Hello"), Special(KeyEnter), Text("World")},
		},
		{
			"delay",
			"Wait{Delay 500}Done",
			[]Segment{Text("Wait"), Delay(500), Text("Done")},
		},
		{
			"modifier chord",
			"{KeyDown Ctrl}c{KeyUp Ctrl}",
			[]Segment{ModifierDown(ModCtrl), Text("c"), ModifierUp(ModCtrl)},
		},
		{"escaped braces", "{{literal}}", []Segment{Text("{literal}")}},
		{"unknown directive", "{Unknown}", []Segment{Text("{Unknown}")}},
		{"unclosed brace", "abc{Enter", []Segment{Text("abc{Enter")}},
		{"lone closing brace", "a}b", []Segment{Text("a}b")}},
		{"paste", "{Paste}", []Segment{Paste()}},
		{"paste with argument", "{Paste now}", []Segment{Text("{Paste now}")}},
		{"case insensitive key", "{enter}{TAB}{eSc}", []Segment{Special(KeyEnter), Special(KeyTab), Special(KeyEscape)}},
		{"return alias", "{Return}", []Segment{Special(KeyEnter)}},
		{"page aliases", "{PgUp}{PgDn}", []Segment{Special(KeyPageUp), Special(KeyPageDown)}},
		{"function keys", "{F1}{f12}", []Segment{Special(KeyF1), Special(KeyF12)}},
		{"arrows", "{Up}{Down}{Left}{Right}", []Segment{Special(KeyUp), Special(KeyDown), Special(KeyLeft), Special(KeyRight)}},
		{"delay missing argument", "{Delay}", []Segment{Text("{Delay}")}},
		{"delay non numeric", "{Delay abc}", []Segment{Text("{Delay abc}")}},
		{"delay negative", "{Delay -5}", []Segment{Text("{Delay -5}")}},
		{"delay zero", "{Delay 0}", []Segment{Delay(0)}},
		{"delay explicit plus", "{Delay +5}", []Segment{Delay(5)}},
		{"delay bare plus", "{Delay +}", []Segment{Text("{Delay +}")}},
		{"delay double plus", "{Delay ++5}", []Segment{Text("{Delay ++5}")}},
		{"delay argument trimmed", "{Delay  100 }", []Segment{Delay(100)}},
		{"keydown unknown modifier", "{KeyDown Hyper}", []Segment{Text("{KeyDown Hyper}")}},
		{"keyup alias", "{KeyUp cmd}", []Segment{ModifierUp(ModMeta)}},
		{"side specific modifier", "{KeyDown LShift}", []Segment{ModifierDown(ModLeftShift)}},
		{"empty directive", "{}", []Segment{Text("{}")}},
		{"padded key name", "{ Enter}", []Segment{Text("{ Enter}")}},
		{
			"escapes merge with text",
			"a{{b}}c{Tab}",
			[]Segment{Text("a{b}c"), Special(KeyTab)},
		},
		{
			"unknown directive merges with text",
			"x{Foo}y{Enter}",
			[]Segment{Text("x{Foo}y"), Special(KeyEnter)},
		},
		{"unicode text", "héllo ✓{Enter}", []Segment{Text("héllo ✓"), Special(KeyEnter)}},
		{
			"adjacent directives",
			"{Enter}{Enter}",
			[]Segment{Special(KeyEnter), Special(KeyEnter)},
		},
		{
			"nested opening brace",
			"{Del{Enter}",
			[]Segment{Text("{Del{Enter}")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.in))
		})
	}
}

func TestCompileIsTotal(t *testing.T) {
	alphabet := []rune("ab {}EnterDelay 12KeyDownCtrlPaste-é")
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		n := rng.Intn(24)
		buf := make([]rune, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		in := string(buf)

		segments := Compile(in)
		for j, s := range segments {
			if s.Kind == KindText {
				require.NotEmpty(t, s.Text, "empty text segment for %q", in)
				if j > 0 {
					require.NotEqual(t, KindText, segments[j-1].Kind, "adjacent text segments for %q", in)
				}
			}
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	inputs := []string{
		"Hello{Enter}World",
		"{KeyDown control}c{KeyUp CONTROL}",
		"{{braces}} and }lone",
		"Wait{Delay 500}Done{Paste}",
		"{Unknown}{Esc}{pgdn}",
		"abc{Enter",
	}

	for _, in := range inputs {
		segments := Compile(in)
		assert.Equal(t, segments, Compile(Format(segments)), "round trip of %q", in)
	}
}

func TestFormatCanonicalNames(t *testing.T) {
	out := Format([]Segment{
		Special(KeyEscape),
		ModifierDown(ModMeta),
		Text("{x}"),
		ModifierUp(ModMeta),
		Delay(20),
		Paste(),
	})
	assert.Equal(t, "{Escape}{KeyDown Meta}{{x}}{KeyUp Meta}{Delay 20}{Paste}", out)
}

func TestSegmentHelpers(t *testing.T) {
	segments := Compile("a{Delay 100}b{Delay 250}")
	assert.True(t, HasDelay(segments))
	assert.Equal(t, int64(350), TotalDelay(segments).Milliseconds())
	assert.False(t, HasDelay(Compile("plain{Enter}")))

	assert.Equal(t, `Text("hi")`, Text("hi").String())
	assert.Equal(t, "Key(Enter)", Special(KeyEnter).String())
	assert.Equal(t, "Delay(250)", Delay(250).String())
	assert.Equal(t, "KeyDown(Ctrl)", ModifierDown(ModCtrl).String())
	assert.Equal(t, "KeyUp(Shift)", ModifierUp(ModShift).String())
	assert.Equal(t, "Paste", Paste().String())
	assert.Zero(t, Text("x").Duration())
}

func TestDelayBeyondDurationRangeSaturates(t *testing.T) {
	segments := Compile("a{Delay 10000000000000}b{Delay 18446744073709551615}")
	require.Len(t, segments, 4)

	assert.Equal(t, uint64(10000000000000), segments[1].DelayMs)
	assert.Equal(t, time.Duration(math.MaxInt64), segments[1].Duration())
	assert.Equal(t, time.Duration(math.MaxInt64), segments[3].Duration())
	assert.Equal(t, time.Duration(math.MaxInt64), TotalDelay(segments))

	// The largest representable count still converts exactly.
	exact := Delay(maxDelayMs)
	assert.Equal(t, time.Duration(maxDelayMs)*time.Millisecond, exact.Duration())
	assert.Equal(t, time.Duration(math.MaxInt64), TotalDelay([]Segment{exact, exact}))
}

func TestNameLookups(t *testing.T) {
	k, ok := KeyFromName("DEL")
	require.True(t, ok)
	assert.Equal(t, KeyDelete, k)

	_, ok = KeyFromName("hyper")
	assert.False(t, ok)

	m, ok := ModifierFromName("Option")
	require.True(t, ok)
	assert.Equal(t, ModAlt, m)

	for _, name := range []string{"win", "cmd", "command", "super", "meta"} {
		m, ok := ModifierFromName(name)
		require.True(t, ok, name)
		assert.Equal(t, ModMeta, m, name)
	}

	assert.Equal(t, "None", KeyNone.String())
	assert.Equal(t, "None", ModNone.String())
}
