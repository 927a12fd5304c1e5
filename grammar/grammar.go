// Package grammar defines the grammar specification consumed by matcher
// construction, and the front-ends that build it from a regex, a
// Lark-style grammar, or a JSON schema.
//
// A specification bundles one or more named grammars. Each grammar is a
// set of rules over a small node algebra; compilation into an executable
// automaton happens separately (see the automaton package).
package grammar

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Node is one production element. The concrete types below are the whole
// algebra; anything richer (regex sugar, schema constructs) is lowered to
// these by the front-ends.
type Node interface {
	node()
}

// Literal matches an exact byte string (UTF-8 text matches its bytes).
type Literal string

type RuneRange struct {
	Lo, Hi rune
}

// CharClass matches one Unicode scalar value from any of its ranges.
// Ranges must be non-empty, sorted and non-overlapping.
type CharClass struct {
	Ranges []RuneRange
}

// Concat matches its parts in sequence.
type Concat []Node

// Alt matches any one of its branches.
type Alt []Node

// Repeat matches Node between Min and Max times. Max < 0 means unbounded.
type Repeat struct {
	Node     Node
	Min, Max int
}

// SepList matches Elem (Sep Elem)*. When MinOne is false the whole list
// may be empty. It exists so that list bodies compile to a single copy of
// Elem with a back edge instead of one copy per occurrence.
type SepList struct {
	Elem, Sep Node
	MinOne    bool
}

// Ref refers to a rule in the enclosing grammar, or to another grammar in
// the bundle by its name.
type Ref string

// Empty matches the empty string.
type Empty struct{}

func (Literal) node()   {}
func (CharClass) node() {}
func (Concat) node()    {}
func (Alt) node()       {}
func (Repeat) node()    {}
func (SepList) node()   {}
func (Ref) node()       {}
func (Empty) node()     {}

type Grammar struct {
	// Name allows other grammars in the same bundle to reference this
	// grammar's start rule. May be empty.
	Name string

	Start string
	Rules map[string]Node
}

// Spec is a bundle of grammars. The first grammar is the root; matching
// starts at its start rule.
type Spec struct {
	Grammars []*Grammar
}

func (s *Spec) Root() *Grammar {
	if len(s.Grammars) == 0 {
		return nil
	}
	return s.Grammars[0]
}

// ByName returns the grammar with the given non-empty name.
func (s *Spec) ByName(name string) *Grammar {
	for _, g := range s.Grammars {
		if g.Name != "" && g.Name == name {
			return g
		}
	}
	return nil
}

// Validate checks the bundle is structurally sound: a root grammar exists,
// every start rule is defined, and every reference resolves to a rule in
// its grammar or to a named grammar in the bundle.
func (s *Spec) Validate() error {
	if s == nil || len(s.Grammars) == 0 {
		return fmt.Errorf("grammar: empty specification")
	}
	for _, g := range s.Grammars {
		if _, ok := g.Rules[g.Start]; !ok {
			return fmt.Errorf("grammar: undefined start rule %q", g.Start)
		}
		for name, n := range g.Rules {
			if err := s.validateNode(g, n); err != nil {
				return fmt.Errorf("%w (in rule %q)", err, name)
			}
		}
	}
	return nil
}

func (s *Spec) validateNode(g *Grammar, n Node) error {
	switch n := n.(type) {
	case Literal, Empty:
		return nil
	case CharClass:
		if len(n.Ranges) == 0 {
			return fmt.Errorf("grammar: empty character class")
		}
		for _, r := range n.Ranges {
			if r.Lo > r.Hi || r.Hi > unicode.MaxRune {
				return fmt.Errorf("grammar: invalid rune range %U-%U", r.Lo, r.Hi)
			}
		}
		return nil
	case Concat:
		for _, c := range n {
			if err := s.validateNode(g, c); err != nil {
				return err
			}
		}
		return nil
	case Alt:
		if len(n) == 0 {
			return fmt.Errorf("grammar: empty alternation")
		}
		for _, c := range n {
			if err := s.validateNode(g, c); err != nil {
				return err
			}
		}
		return nil
	case Repeat:
		if n.Min < 0 || (n.Max >= 0 && n.Max < n.Min) {
			return fmt.Errorf("grammar: invalid repeat bounds {%d,%d}", n.Min, n.Max)
		}
		return s.validateNode(g, n.Node)
	case SepList:
		if err := s.validateNode(g, n.Elem); err != nil {
			return err
		}
		return s.validateNode(g, n.Sep)
	case Ref:
		if _, ok := g.Rules[string(n)]; ok {
			return nil
		}
		if s.ByName(string(n)) != nil {
			return nil
		}
		return fmt.Errorf("grammar: undefined rule %q", string(n))
	default:
		return fmt.Errorf("grammar: unknown node %T", n)
	}
}

// NegateRanges complements ranges over the Unicode scalar values. The
// input must be sorted and non-overlapping.
func NegateRanges(ranges []RuneRange) []RuneRange {
	var out []RuneRange
	next := rune(0)
	for _, r := range ranges {
		if r.Lo > next {
			out = append(out, RuneRange{next, r.Lo - 1})
		}
		if r.Hi+1 > next {
			next = r.Hi + 1
		}
	}
	if next <= unicode.MaxRune {
		out = append(out, RuneRange{next, unicode.MaxRune})
	}
	return out
}

type specJSON struct {
	Grammars []grammarJSON `json:"grammars"`
}

type grammarJSON struct {
	Name        string          `json:"name,omitempty"`
	LarkGrammar *string         `json:"lark_grammar,omitempty"`
	Regex       *string         `json:"regex,omitempty"`
	JSONSchema  json.RawMessage `json:"json_schema,omitempty"`
}

// Parse builds a specification from grammar source text: either a
// Lark-style grammar, or a JSON document of the form
// {"grammars":[{"lark_grammar":...}|{"regex":...}|{"json_schema":...}]}.
func Parse(src string) (*Spec, error) {
	if strings.HasPrefix(strings.TrimSpace(src), "{") {
		return parseJSON(src)
	}
	return FromLark(src)
}

func parseJSON(src string) (*Spec, error) {
	var doc specJSON
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("grammar: invalid specification: %w", err)
	}
	if len(doc.Grammars) == 0 {
		return nil, fmt.Errorf("grammar: specification has no grammars")
	}

	spec := &Spec{}
	for i, g := range doc.Grammars {
		var sub *Spec
		var err error
		switch {
		case g.LarkGrammar != nil:
			sub, err = FromLark(*g.LarkGrammar)
		case g.Regex != nil:
			sub, err = FromRegex(*g.Regex)
		case g.JSONSchema != nil:
			sub, err = FromSchema(g.JSONSchema, nil)
		default:
			err = fmt.Errorf("grammar: grammar %d has no source", i)
		}
		if err != nil {
			return nil, err
		}
		sub.Root().Name = g.Name
		spec.Grammars = append(spec.Grammars, sub.Grammars...)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
