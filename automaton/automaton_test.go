package automaton

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tokenmask/tokenmask/grammar"
)

func compileRegex(t *testing.T, pattern string) *Machine {
	t.Helper()
	spec, err := grammar.FromRegex(pattern)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Compile(spec, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func compileLark(t *testing.T, src string, limits *Limits) *Machine {
	t.Helper()
	spec, err := grammar.FromLark(src)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Compile(spec, limits)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func match(m *Machine, s string) bool {
	state := m.Start()
	for i := 0; i < len(s); i++ {
		next, ok := m.Step(state, s[i])
		if !ok {
			return false
		}
		state = next
	}
	return m.Accepting(state)
}

func TestLiteral(t *testing.T) {
	m := compileRegex(t, "abc")

	if !match(m, "abc") {
		t.Error("abc not matched")
	}
	for _, s := range []string{"", "ab", "abcd", "abd", "xbc"} {
		if match(m, s) {
			t.Errorf("%q matched", s)
		}
	}

	state := m.Start()
	if m.Accepting(state) || m.NoExtension(state) {
		t.Error("start state flags wrong")
	}
	for _, b := range []byte("abc") {
		state, _ = m.Step(state, b)
	}
	if !m.Accepting(state) || !m.NoExtension(state) {
		t.Error("end state flags wrong")
	}
}

func TestRepeatBounds(t *testing.T) {
	m := compileRegex(t, "a{2,4}")
	for s, want := range map[string]bool{
		"a": false, "aa": true, "aaa": true, "aaaa": true, "aaaaa": false,
	} {
		if got := match(m, s); got != want {
			t.Errorf("match(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestRepeatZeroTimes(t *testing.T) {
	// regexp/syntax hands {0,0} through unsimplified; the body must not
	// match even once.
	m := compileRegex(t, "a{0,0}b")
	if match(m, "ab") {
		t.Error("ab matched under a{0,0}b")
	}
	if !match(m, "b") {
		t.Error("b not matched")
	}
}

func TestStarInstructionCount(t *testing.T) {
	// One byte instruction, the loop split, and the match: the repeat
	// body is not duplicated.
	m := compileRegex(t, "a*")
	if got := m.NumInst(); got != 3 {
		t.Errorf("instructions: got %d, want 3", got)
	}
	for s, want := range map[string]bool{"": true, "a": true, "aaaa": true, "ab": false} {
		if got := match(m, s); got != want {
			t.Errorf("match(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestViableAndForcedBytes(t *testing.T) {
	m := compileRegex(t, "(foo|far)")

	// Only 'f' can start, and it is not optional: it is forced.
	if got := string(m.ForcedBytes(m.Start())); got != "f" {
		t.Errorf("forced bytes: got %q, want %q", got, "f")
	}

	state, _ := m.Step(m.Start(), 'f')
	viable := m.ViableBytes(state)
	for b := 0; b < 256; b++ {
		want := b == 'o' || b == 'a'
		if viable[b] != want {
			t.Errorf("viable[%q] = %v, want %v", byte(b), viable[b], want)
		}
	}
	// Two viable bytes, so nothing is forced.
	if got := m.ForcedBytes(state); len(got) != 0 {
		t.Errorf("forced bytes after branch: got %q", got)
	}

	// Taking 'o' forces the rest of "foo".
	state, _ = m.Step(state, 'o')
	if got := string(m.ForcedBytes(state)); got != "o" {
		t.Errorf("forced bytes: got %q, want %q", got, "o")
	}
}

func TestForcedBytesStopAtAccept(t *testing.T) {
	// After "ab" the automaton accepts; 'c' is viable but not forced.
	m := compileRegex(t, "ab(c)?")
	if got := string(m.ForcedBytes(m.Start())); got != "ab" {
		t.Errorf("forced bytes: got %q, want %q", got, "ab")
	}
}

func TestUTF8Indivisible(t *testing.T) {
	m := compileRegex(t, `[\x{1F600}-\x{1F602}]`)

	if !match(m, "\U0001F601") {
		t.Error("emoji in range not matched")
	}
	if match(m, "\U0001F603") {
		t.Error("emoji out of range matched")
	}

	// A valid lead byte is accepted, but continuation bytes outside the
	// encoding of the range are rejected mid-codepoint.
	state, ok := m.Step(m.Start(), 0xF0)
	if !ok {
		t.Fatal("lead byte rejected")
	}
	if _, ok := m.Step(state, 'a'); ok {
		t.Error("invalid continuation byte accepted")
	}
	if _, ok := m.Step(m.Start(), 0xFF); ok {
		t.Error("invalid lead byte accepted")
	}
}

func TestRecursiveGrammarDepth(t *testing.T) {
	src := `start: "a" | "(" start ")"`
	m := compileLark(t, src, nil)

	for depth := 0; depth <= 8; depth++ {
		s := strings.Repeat("(", depth) + "a" + strings.Repeat(")", depth)
		if !match(m, s) {
			t.Errorf("depth %d not matched", depth)
		}
	}
	s := strings.Repeat("(", 9) + "a" + strings.Repeat(")", 9)
	if match(m, s) {
		t.Error("depth 9 matched with default limit of 8")
	}

	// A larger limit admits deeper nesting.
	m = compileLark(t, src, &Limits{MaxNestingDepth: 12})
	if !match(m, s) {
		t.Error("depth 9 not matched with limit 12")
	}
}

func TestGrammarMatchesNothing(t *testing.T) {
	// Pure recursion with no base case has no finite derivation.
	spec, err := grammar.FromLark(`start: "(" start ")"`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(spec, nil); err == nil {
		t.Fatal("expected error for empty language")
	}
}

func TestInstructionLimit(t *testing.T) {
	spec, err := grammar.FromRegex("[a-z]{100}")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(spec, &Limits{MaxInstructions: 16}); err == nil {
		t.Fatal("expected error for oversize grammar")
	}
}

func TestUTF8Sequences(t *testing.T) {
	got := utf8Sequences(0, 0x10FFFF)
	want := [][]byteRange{
		{{0x00, 0x7F}},
		{{0xC2, 0xDF}, {0x80, 0xBF}},
		{{0xE0, 0xE0}, {0xA0, 0xBF}, {0x80, 0xBF}},
		{{0xED, 0xED}, {0x80, 0x9F}, {0x80, 0xBF}},
		{{0xE1, 0xEC}, {0x80, 0xBF}, {0x80, 0xBF}},
		{{0xEE, 0xEF}, {0x80, 0xBF}, {0x80, 0xBF}},
		{{0xF0, 0xF0}, {0x90, 0xBF}, {0x80, 0xBF}, {0x80, 0xBF}},
		{{0xF4, 0xF4}, {0x80, 0x8F}, {0x80, 0xBF}, {0x80, 0xBF}},
		{{0xF1, 0xF3}, {0x80, 0xBF}, {0x80, 0xBF}, {0x80, 0xBF}},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(byteRange{})); diff != "" {
		t.Errorf("sequences mismatch (-want +got):\n%s", diff)
	}
}
