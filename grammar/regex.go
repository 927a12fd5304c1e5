package grammar

import (
	"fmt"
	"regexp/syntax"
	"unicode"
)

// FromRegex builds a single-grammar specification matching the regex as a
// whole string. Constructs without a regular-language meaning (word
// boundaries, backreferences, line anchors) fail construction.
func FromRegex(pattern string) (*Spec, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("grammar: invalid regex %q: %w", pattern, err)
	}
	n, err := fromRegexp(re)
	if err != nil {
		return nil, err
	}
	spec := &Spec{Grammars: []*Grammar{{
		Start: "start",
		Rules: map[string]Node{"start": n},
	}}}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// RegexNode converts a regex pattern into a grammar node, for embedding
// regex terminals inside larger grammars.
func RegexNode(pattern string) (Node, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("grammar: invalid regex %q: %w", pattern, err)
	}
	return fromRegexp(re)
}

func fromRegexp(re *syntax.Regexp) (Node, error) {
	switch re.Op {
	case syntax.OpEmptyMatch, syntax.OpBeginText, syntax.OpEndText:
		// Matching is whole-string; text anchors are no-ops.
		return Empty{}, nil
	case syntax.OpLiteral:
		if re.Flags&syntax.FoldCase != 0 {
			parts := make(Concat, 0, len(re.Rune))
			for _, r := range re.Rune {
				parts = append(parts, CharClass{Ranges: foldedRanges(r)})
			}
			return parts, nil
		}
		return Literal(string(re.Rune)), nil
	case syntax.OpCharClass:
		ranges := make([]RuneRange, 0, len(re.Rune)/2)
		for i := 0; i+1 < len(re.Rune); i += 2 {
			ranges = append(ranges, RuneRange{re.Rune[i], re.Rune[i+1]})
		}
		if len(ranges) == 0 {
			return nil, fmt.Errorf("grammar: regex class matches nothing")
		}
		return CharClass{Ranges: ranges}, nil
	case syntax.OpAnyChar:
		return CharClass{Ranges: []RuneRange{{0, unicode.MaxRune}}}, nil
	case syntax.OpAnyCharNotNL:
		return CharClass{Ranges: []RuneRange{{0, '\n' - 1}, {'\n' + 1, unicode.MaxRune}}}, nil
	case syntax.OpCapture:
		return fromRegexp(re.Sub[0])
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest:
		sub, err := fromRegexp(re.Sub[0])
		if err != nil {
			return nil, err
		}
		switch re.Op {
		case syntax.OpStar:
			return Repeat{Node: sub, Min: 0, Max: -1}, nil
		case syntax.OpPlus:
			return Repeat{Node: sub, Min: 1, Max: -1}, nil
		default:
			return Repeat{Node: sub, Min: 0, Max: 1}, nil
		}
	case syntax.OpRepeat:
		sub, err := fromRegexp(re.Sub[0])
		if err != nil {
			return nil, err
		}
		return Repeat{Node: sub, Min: re.Min, Max: re.Max}, nil
	case syntax.OpConcat:
		parts := make(Concat, 0, len(re.Sub))
		for _, sub := range re.Sub {
			n, err := fromRegexp(sub)
			if err != nil {
				return nil, err
			}
			parts = append(parts, n)
		}
		return parts, nil
	case syntax.OpAlternate:
		branches := make(Alt, 0, len(re.Sub))
		for _, sub := range re.Sub {
			n, err := fromRegexp(sub)
			if err != nil {
				return nil, err
			}
			branches = append(branches, n)
		}
		return branches, nil
	default:
		return nil, fmt.Errorf("grammar: unsupported regex construct %v", re.Op)
	}
}

func foldedRanges(r rune) []RuneRange {
	runes := []rune{r}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		runes = append(runes, f)
	}
	var ranges []RuneRange
	for _, f := range runes {
		ranges = append(ranges, RuneRange{f, f})
	}
	// keep sorted and non-overlapping
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j].Lo < ranges[j-1].Lo; j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
	return ranges
}
