package grammar

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromRegex(t *testing.T) {
	spec, err := FromRegex("(foo|bar)[0-9]{1,3}")
	if err != nil {
		t.Fatal(err)
	}
	if err := spec.Validate(); err != nil {
		t.Fatal(err)
	}
	if spec.Root().Start != "start" {
		t.Errorf("start rule: got %q", spec.Root().Start)
	}
}

func TestFromRegexUnsupported(t *testing.T) {
	for _, pattern := range []string{`a\bc`, `(?m)^a$`} {
		if _, err := FromRegex(pattern); err == nil {
			t.Errorf("pattern %q: expected error", pattern)
		}
	}
}

func TestFromRegexInvalid(t *testing.T) {
	if _, err := FromRegex("a(b"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFromLark(t *testing.T) {
	spec, err := FromLark(`
		// a tiny grammar
		start: greeting " " name
		greeting: "hello" | "hi"
		name: /[a-z]+/
	`)
	if err != nil {
		t.Fatal(err)
	}
	g := spec.Root()
	if len(g.Rules) != 3 {
		t.Errorf("rules: got %d, want 3", len(g.Rules))
	}
}

func TestFromLarkUndefinedRule(t *testing.T) {
	_, err := FromLark(`start: no_such_rule`)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no_such_rule") {
		t.Errorf("error %q does not name the missing rule", err)
	}
}

func TestFromLarkErrors(t *testing.T) {
	for name, src := range map[string]string{
		"missing start":     `greeting: "hi"`,
		"duplicate rule":    "start: \"a\"\nstart: \"b\"",
		"unterminated str":  `start: "abc`,
		"unbalanced parens": `start: ("a" | "b"`,
		"empty":             ``,
	} {
		if _, err := FromLark(src); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFromLarkEscapes(t *testing.T) {
	spec, err := FromLark(`start: "a\n\t\"\\\x41é"`)
	if err != nil {
		t.Fatal(err)
	}
	got := spec.Root().Rules["start"]
	want := Literal("a\n\t\"\\Aé")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("literal mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDispatch(t *testing.T) {
	if _, err := Parse(`start: "x"`); err != nil {
		t.Errorf("lark source: %v", err)
	}

	src := `{"grammars": [{"regex": "[0-9]+"}]}`
	if _, err := Parse(src); err != nil {
		t.Errorf("regex grammar: %v", err)
	}

	src = `{"grammars": [{"json_schema": {"type": "boolean"}}]}`
	if _, err := Parse(src); err != nil {
		t.Errorf("schema grammar: %v", err)
	}

	if _, err := Parse(`{"grammars": []}`); err == nil {
		t.Error("empty grammar list: expected error")
	}
	if _, err := Parse(`{"grammars": [{}]}`); err == nil {
		t.Error("sourceless grammar: expected error")
	}
}

func TestFromSubstring(t *testing.T) {
	spec, err := FromSubstring("héllo")
	if err != nil {
		t.Fatal(err)
	}
	if err := spec.Validate(); err != nil {
		t.Fatal(err)
	}
	if spec.Root().Start != "start" {
		t.Errorf("start rule: got %q", spec.Root().Start)
	}
}

func TestSubstringNodeEmpty(t *testing.T) {
	if got := SubstringNode(""); got != (Empty{}) {
		t.Errorf("got %#v, want Empty", got)
	}
}

func TestFromSchemaUnsupportedType(t *testing.T) {
	_, err := FromSchema([]byte(`{"type": "frobnicate"}`), nil)
	if err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("got %v, want unsupported type error", err)
	}
}

func TestFromSchemaInvalid(t *testing.T) {
	if _, err := FromSchema([]byte(`{`), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestSchemaOptionsFromDocument(t *testing.T) {
	// x-guidance inside the document applies when no explicit options are
	// given.
	spec, err := FromSchema([]byte(`{
		"type": "object",
		"x-guidance": {"whitespace_flexible": false}
	}`), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := spec.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	for name, spec := range map[string]*Spec{
		"empty": {},
		"missing start": {Grammars: []*Grammar{
			{Start: "start", Rules: map[string]Node{"other": Literal("x")}},
		}},
		"dangling ref": {Grammars: []*Grammar{
			{Start: "start", Rules: map[string]Node{"start": Ref("gone")}},
		}},
		"empty class": {Grammars: []*Grammar{
			{Start: "start", Rules: map[string]Node{"start": CharClass{}}},
		}},
		"bad repeat": {Grammars: []*Grammar{
			{Start: "start", Rules: map[string]Node{"start": Repeat{Node: Literal("x"), Min: 3, Max: 1}}},
		}},
	} {
		if err := spec.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	ok := &Spec{Grammars: []*Grammar{
		{Name: "outer", Start: "start", Rules: map[string]Node{"start": Ref("inner")}},
		{Name: "inner", Start: "start", Rules: map[string]Node{"start": Literal("x")}},
	}}
	if err := ok.Validate(); err != nil {
		t.Errorf("cross-grammar ref: %v", err)
	}
}

func TestNegateRanges(t *testing.T) {
	got := NegateRanges([]RuneRange{{'b', 'd'}, {'x', 'z'}})
	want := []RuneRange{{0, 'a'}, {'e', 'w'}, {'{', 0x10FFFF}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	full := NegateRanges(nil)
	if diff := cmp.Diff([]RuneRange{{0, 0x10FFFF}}, full); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
