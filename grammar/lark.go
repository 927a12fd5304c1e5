package grammar

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FromLark builds a specification from a Lark-style grammar. The supported
// subset covers rules of the form
//
//	name: item item | item
//
// where an item is a quoted string, a /regex/ terminal, a rule reference,
// or a parenthesized group, optionally followed by *, + or ?. Line
// comments start with //. Matching starts at the "start" rule.
func FromLark(src string) (*Spec, error) {
	rules, err := splitRules(src)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("grammar: lark: no rules defined")
	}

	g := &Grammar{Start: "start", Rules: make(map[string]Node, len(rules))}
	for _, r := range rules {
		if _, ok := g.Rules[r.name]; ok {
			return nil, fmt.Errorf("grammar: lark: rule %q defined twice", r.name)
		}
		n, err := parseRuleBody(r.name, r.body)
		if err != nil {
			return nil, err
		}
		g.Rules[r.name] = n
	}
	if _, ok := g.Rules["start"]; !ok {
		return nil, fmt.Errorf("grammar: lark: missing start rule")
	}

	spec := &Spec{Grammars: []*Grammar{g}}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

type larkRule struct {
	name string
	body string
}

// splitRules groups source lines into rules. A rule starts at a line of
// the form "name:" and continues until the next such line.
func splitRules(src string) ([]larkRule, error) {
	var rules []larkRule
	for lineno, line := range strings.Split(src, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, body, ok := ruleHeader(trimmed); ok {
			rules = append(rules, larkRule{name: name, body: body})
			continue
		}
		if len(rules) == 0 {
			return nil, fmt.Errorf("grammar: lark: line %d: expected rule definition", lineno+1)
		}
		rules[len(rules)-1].body += " " + trimmed
	}
	return rules, nil
}

func ruleHeader(line string) (name, body string, ok bool) {
	i := 0
	for i < len(line) && isNameByte(line[i]) {
		i++
	}
	if i == 0 {
		return "", "", false
	}
	j := i
	for j < len(line) && (line[j] == ' ' || line[j] == '\t') {
		j++
	}
	if j >= len(line) || line[j] != ':' {
		return "", "", false
	}
	return line[:i], line[j+1:], true
}

func isNameByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

type larkParser struct {
	rule string
	src  string
	pos  int
}

func parseRuleBody(rule, body string) (Node, error) {
	p := &larkParser{rule: rule, src: body}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return n, nil
}

func (p *larkParser) errorf(format string, args ...any) error {
	return fmt.Errorf("grammar: lark: rule %q: %s", p.rule, fmt.Sprintf(format, args...))
}

func (p *larkParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *larkParser) parseExpr() (Node, error) {
	first, err := p.parseSeq()
	if err != nil {
		return nil, err
	}
	branches := Alt{first}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '|' {
			break
		}
		p.pos++
		n, err := p.parseSeq()
		if err != nil {
			return nil, err
		}
		branches = append(branches, n)
	}
	if len(branches) == 1 {
		return branches[0], nil
	}
	return branches, nil
}

func (p *larkParser) parseSeq() (Node, error) {
	var parts Concat
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			break
		}
		if c := p.src[p.pos]; c == '|' || c == ')' {
			break
		}
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		parts = append(parts, item)
	}
	switch len(parts) {
	case 0:
		return Empty{}, nil
	case 1:
		return parts[0], nil
	}
	return parts, nil
}

func (p *larkParser) parseItem() (Node, error) {
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '*':
			p.pos++
			atom = Repeat{Node: atom, Min: 0, Max: -1}
		case '+':
			p.pos++
			atom = Repeat{Node: atom, Min: 1, Max: -1}
		case '?':
			p.pos++
			atom = Repeat{Node: atom, Min: 0, Max: 1}
		default:
			return atom, nil
		}
	}
	return atom, nil
}

func (p *larkParser) parseAtom() (Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of rule")
	}
	switch c := p.src[p.pos]; {
	case c == '"':
		return p.parseString()
	case c == '/':
		return p.parseRegex()
	case c == '(':
		p.pos++
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return n, nil
	case isNameByte(c):
		start := p.pos
		for p.pos < len(p.src) && isNameByte(p.src[p.pos]) {
			p.pos++
		}
		return Ref(p.src[start:p.pos]), nil
	default:
		return nil, p.errorf("unexpected character %q", rune(c))
	}
}

func (p *larkParser) parseString() (Node, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return Literal(sb.String()), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return nil, p.errorf("unterminated escape")
			}
			r, err := p.parseEscape()
			if err != nil {
				return nil, err
			}
			sb.WriteRune(r)
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			sb.WriteRune(r)
			p.pos += size
		}
	}
	return nil, p.errorf("unterminated string")
}

func (p *larkParser) parseEscape() (rune, error) {
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '"', '\\', '/':
		return rune(c), nil
	case 'x', 'u', 'U':
		n := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if p.pos+n > len(p.src) {
			return 0, p.errorf("truncated \\%c escape", c)
		}
		var v rune
		for i := 0; i < n; i++ {
			d := hexDigit(p.src[p.pos+i])
			if d < 0 {
				return 0, p.errorf("invalid \\%c escape", c)
			}
			v = v<<4 | rune(d)
		}
		p.pos += n
		if v > unicode.MaxRune {
			return 0, p.errorf("escape out of range")
		}
		return v, nil
	default:
		return 0, p.errorf("unknown escape \\%c", c)
	}
}

func hexDigit(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	}
	return -1
}

func (p *larkParser) parseRegex() (Node, error) {
	p.pos++ // opening slash
	start := p.pos
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '\\' && p.pos+1 < len(p.src) {
			if p.src[p.pos+1] == '/' {
				sb.WriteByte('/')
			} else {
				sb.WriteByte(c)
				sb.WriteByte(p.src[p.pos+1])
			}
			p.pos += 2
			continue
		}
		if c == '/' {
			p.pos++
			n, err := RegexNode(sb.String())
			if err != nil {
				return nil, p.errorf("%v", err)
			}
			return n, nil
		}
		sb.WriteByte(c)
		p.pos++
	}
	return nil, p.errorf("unterminated regex starting at %q", p.src[start-1:])
}
