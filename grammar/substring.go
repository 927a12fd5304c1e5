package grammar

// FromSubstring builds a specification accepting every contiguous
// substring of text, split at rune boundaries, including the empty
// string. Quotation-constrained output uses it to force text copied
// verbatim from a source document.
func FromSubstring(text string) (*Spec, error) {
	spec := &Spec{Grammars: []*Grammar{{
		Start: "start",
		Rules: map[string]Node{"start": SubstringNode(text)},
	}}}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// SubstringNode returns a node matching the contiguous substrings of
// text, for embedding inside larger grammars. A substring is a prefix of
// a suffix: the node alternates over every suffix start, and within a
// suffix each rune's continuation is optional so matching can stop
// anywhere. The expansion is quadratic in the text length and bounded by
// the compilation instruction limit.
func SubstringNode(text string) Node {
	runes := []rune(text)
	if len(runes) == 0 {
		return Empty{}
	}
	branches := make(Alt, 0, len(runes))
	for i := range runes {
		branches = append(branches, prefixesOf(runes[i:]))
	}
	return opt(branches)
}

// prefixesOf matches the non-empty prefixes of rs.
func prefixesOf(rs []rune) Node {
	node := Node(Literal(string(rs[len(rs)-1])))
	for i := len(rs) - 2; i >= 0; i-- {
		node = Concat{Literal(string(rs[i])), opt(node)}
	}
	return node
}
