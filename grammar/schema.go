package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tokenmask/tokenmask/grammar/jsonschema"
)

// SchemaOptions controls the shape of a schema-derived grammar. A schema
// document may carry its own options under the "x-guidance" key; explicit
// options passed to FromSchema take precedence over those.
type SchemaOptions struct {
	// WhitespaceFlexible allows JSON whitespace between structural
	// tokens. Defaults to true.
	WhitespaceFlexible *bool `json:"whitespace_flexible,omitempty"`
}

func (o *SchemaOptions) flexible() bool {
	if o == nil || o.WhitespaceFlexible == nil {
		return true
	}
	return *o.WhitespaceFlexible
}

// FromSchema builds a specification from a JSON schema document. The
// grammar accepts exactly the JSON texts valid under the supported schema
// subset: object properties in declared order, required members present,
// additional members where the schema allows them, typed primitives and
// enums. Nesting depth of unconstrained values is bounded at automaton
// compilation.
func FromSchema(data []byte, opts *SchemaOptions) (*Spec, error) {
	var s *jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("grammar: invalid schema: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("grammar: empty schema")
	}
	s.Name = "root"

	if opts == nil {
		opts = schemaOptionsOf(data)
	}

	b := &schemaBuilder{flexible: opts.flexible()}
	root, err := b.valueOf(s)
	if err != nil {
		return nil, err
	}

	rules := b.baseRules()
	rules["start"] = root
	spec := &Spec{Grammars: []*Grammar{{Start: "start", Rules: rules}}}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func schemaOptionsOf(data []byte) *SchemaOptions {
	var probe struct {
		XGuidance *SchemaOptions `json:"x-guidance"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.XGuidance != nil {
		return probe.XGuidance
	}
	return nil
}

type schemaBuilder struct {
	flexible bool
}

func opt(n Node) Node  { return Repeat{Node: n, Min: 0, Max: 1} }
func star(n Node) Node { return Repeat{Node: n, Min: 0, Max: -1} }
func plus(n Node) Node { return Repeat{Node: n, Min: 1, Max: -1} }

func (b *schemaBuilder) ws() Node {
	if !b.flexible {
		return Empty{}
	}
	return star(CharClass{Ranges: []RuneRange{{'\t', '\n'}, {'\r', '\r'}, {' ', ' '}}})
}

func (b *schemaBuilder) sep() Node {
	return Concat{b.ws(), Literal(","), b.ws()}
}

func (b *schemaBuilder) valueOf(s *jsonschema.Schema) (Node, error) {
	if len(s.Enum) > 0 {
		branches := make(Alt, 0, len(s.Enum))
		for _, e := range s.Enum {
			var buf bytes.Buffer
			if err := json.Compact(&buf, e); err != nil {
				return nil, fmt.Errorf("grammar: %s: invalid enum value: %w", s.Name, err)
			}
			branches = append(branches, Literal(buf.String()))
		}
		return branches, nil
	}

	switch typ := s.EffectiveType(); typ {
	case "object":
		return b.object(s)
	case "array":
		return b.array(s)
	case "string":
		return Ref("json_string"), nil
	case "integer":
		return Ref("json_integer"), nil
	case "number":
		return Ref("json_number"), nil
	case "boolean":
		return Ref("json_boolean"), nil
	case "null":
		return Ref("json_null"), nil
	case "value":
		return Ref("json_value"), nil
	default:
		return nil, fmt.Errorf("grammar: %s: unsupported type %q", s.Name, typ)
	}
}

type objectProp struct {
	name     string
	schema   *jsonschema.Schema // nil accepts any value
	required bool
}

func (b *schemaBuilder) object(s *jsonschema.Schema) (Node, error) {
	var props []objectProp
	for _, p := range s.Properties {
		props = append(props, objectProp{
			name:     p.Name,
			schema:   p,
			required: slices.Contains(s.Required, p.Name),
		})
	}
	for _, name := range s.Required {
		if !slices.ContainsFunc(props, func(p objectProp) bool { return p.name == name }) {
			props = append(props, objectProp{name: name, required: true})
		}
	}

	additional := s.AdditionalProperties == nil || *s.AdditionalProperties

	members, err := b.members(props, additional, 0, true)
	if err != nil {
		return nil, err
	}
	return Concat{Literal("{"), b.ws(), members, b.ws(), Literal("}")}, nil
}

// members builds the member list from property index i onward. first
// tracks whether no member has been emitted yet, which decides leading
// separators. Optional properties fork the production: one branch with
// the member, one without.
func (b *schemaBuilder) members(props []objectProp, additional bool, i int, first bool) (Node, error) {
	if i == len(props) {
		if !additional {
			return Empty{}, nil
		}
		if first {
			return opt(SepList{Elem: Ref("json_member"), Sep: b.sep(), MinOne: true}), nil
		}
		return star(Concat{b.sep(), Ref("json_member")}), nil
	}

	p := props[i]
	key, err := json.Marshal(p.name)
	if err != nil {
		return nil, err
	}
	var value Node = Ref("json_value")
	if p.schema != nil {
		if value, err = b.valueOf(p.schema); err != nil {
			return nil, err
		}
	}
	member := Concat{Literal(key), b.ws(), Literal(":"), b.ws(), value}

	var emitted Node = member
	if !first {
		emitted = Concat{b.sep(), member}
	}
	rest, err := b.members(props, additional, i+1, false)
	if err != nil {
		return nil, err
	}
	with := Concat{emitted, rest}

	if p.required {
		return with, nil
	}
	without, err := b.members(props, additional, i+1, first)
	if err != nil {
		return nil, err
	}
	return Alt{with, without}, nil
}

func (b *schemaBuilder) array(s *jsonschema.Schema) (Node, error) {
	var parts Concat
	for i, p := range s.PrefixItems {
		item, err := b.valueOf(p)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			parts = append(parts, b.sep())
		}
		parts = append(parts, item)
	}

	var item Node
	switch {
	case s.Items != nil:
		var err error
		if item, err = b.valueOf(s.Items); err != nil {
			return nil, err
		}
	case len(s.PrefixItems) == 0:
		item = Ref("json_value")
	}

	var inner Node
	switch {
	case item == nil:
		inner = parts
	case len(parts) > 0:
		inner = append(parts, star(Concat{b.sep(), item}))
	default:
		inner = b.repeatedItems(item, s.MinItems, s.MaxItems)
	}
	return Concat{Literal("["), b.ws(), inner, b.ws(), Literal("]")}, nil
}

func (b *schemaBuilder) repeatedItems(item Node, minItems, maxItems int) Node {
	if minItems == 0 && maxItems == 0 {
		return opt(SepList{Elem: item, Sep: b.sep(), MinOne: true})
	}
	more := Repeat{Node: Concat{b.sep(), item}, Min: max(0, minItems-1), Max: -1}
	if maxItems > 0 {
		more.Max = maxItems - 1
	}
	bounded := Concat{item, more}
	if minItems == 0 {
		return opt(bounded)
	}
	return bounded
}

// baseRules defines the shared JSON productions, following RFC 7159.
// Unreferenced rules cost nothing; only productions reachable from start
// are compiled.
func (b *schemaBuilder) baseRules() map[string]Node {
	digit := CharClass{Ranges: []RuneRange{{'0', '9'}}}
	hex := CharClass{Ranges: []RuneRange{{'0', '9'}, {'A', 'F'}, {'a', 'f'}}}

	return map[string]Node{
		"json_value": Alt{
			Ref("json_object"), Ref("json_array"), Ref("json_string"),
			Ref("json_number"), Ref("json_boolean"), Ref("json_null"),
		},
		"json_object": Concat{
			Literal("{"), b.ws(),
			opt(SepList{Elem: Ref("json_member"), Sep: b.sep(), MinOne: true}),
			b.ws(), Literal("}"),
		},
		"json_member": Concat{
			Ref("json_string"), b.ws(), Literal(":"), b.ws(), Ref("json_value"),
		},
		"json_array": Concat{
			Literal("["), b.ws(),
			opt(SepList{Elem: Ref("json_value"), Sep: b.sep(), MinOne: true}),
			b.ws(), Literal("]"),
		},
		"json_string": Concat{Literal(`"`), star(Ref("json_char")), Literal(`"`)},
		"json_char": Alt{
			// Anything except control characters and the two that need
			// escaping.
			CharClass{Ranges: NegateRanges([]RuneRange{{0x00, 0x1F}, {'"', '"'}, {'\\', '\\'}})},
			Concat{Literal(`\`), Alt{
				CharClass{Ranges: []RuneRange{
					{'"', '"'}, {'/', '/'}, {'\\', '\\'}, {'b', 'b'},
					{'f', 'f'}, {'n', 'n'}, {'r', 'r'}, {'t', 't'},
				}},
				Concat{Literal("u"), hex, hex, hex, hex},
			}},
		},
		"json_integer": Concat{
			opt(Literal("-")),
			Alt{Literal("0"), Concat{CharClass{Ranges: []RuneRange{{'1', '9'}}}, star(digit)}},
		},
		"json_number": Concat{
			Ref("json_integer"),
			opt(Concat{Literal("."), plus(digit)}),
			opt(Concat{CharClass{Ranges: []RuneRange{{'E', 'E'}, {'e', 'e'}}}, opt(CharClass{Ranges: []RuneRange{{'+', '+'}, {'-', '-'}}}), plus(digit)}),
		},
		"json_boolean": Alt{Literal("true"), Literal("false")},
		"json_null":    Literal("null"),
	}
}
