package jsonschema

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func decode(t *testing.T, src string) *Schema {
	t.Helper()
	var s Schema
	if err := json.Unmarshal([]byte(src), &s); err != nil {
		t.Fatal(err)
	}
	return &s
}

func TestPropertyOrder(t *testing.T) {
	s := decode(t, `{
		"type": "object",
		"properties": {
			"b": {"type": "string"},
			"a": {"type": "integer"},
			"c": {"type": "boolean"}
		}
	}`)

	var got []string
	for _, p := range s.Properties {
		got = append(got, p.Name)
	}
	// Declaration order, not lexical order.
	if diff := cmp.Diff([]string{"b", "a", "c"}, got); diff != "" {
		t.Errorf("property order mismatch (-want +got):\n%s", diff)
	}
}

func TestRequired(t *testing.T) {
	s := decode(t, `{"required": ["foo", "bar"]}`)
	if diff := cmp.Diff([]string{"foo", "bar"}, s.Required); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestAdditionalProperties(t *testing.T) {
	for src, want := range map[string]string{
		`{}`:                                 "absent",
		`{"additionalProperties": true}`:     "true",
		`{"additionalProperties": false}`:    "false",
		`{"additionalProperties": {"a": 1}}`: "true",
		`{"additionalProperties": null}`:     "absent",
	} {
		s := decode(t, src)
		got := "absent"
		if s.AdditionalProperties != nil {
			if *s.AdditionalProperties {
				got = "true"
			} else {
				got = "false"
			}
		}
		if got != want {
			t.Errorf("%s: got %s, want %s", src, got, want)
		}
	}
}

func TestItems(t *testing.T) {
	if s := decode(t, `{"items": true}`); s.Items == nil {
		t.Error("items true: got nil")
	}
	if s := decode(t, `{"items": false}`); s.Items != nil {
		t.Error("items false: got non-nil")
	}
	if s := decode(t, `{"items": {"type": "integer"}}`); s.Items == nil || s.Items.Type != "integer" {
		t.Errorf("items object: got %+v", s.Items)
	}
}

func TestEffectiveType(t *testing.T) {
	for src, want := range map[string]string{
		`{"type": "string"}`:            "string",
		`{"properties": {"a": {}}}`:     "object",
		`{"required": ["a"]}`:           "object",
		`{"items": {"type": "number"}}`: "array",
		`{"prefixItems": [{}]}`:         "array",
		`{}`:                            "value",
	} {
		if got := decode(t, src).EffectiveType(); got != want {
			t.Errorf("%s: got %q, want %q", src, got, want)
		}
	}
}
