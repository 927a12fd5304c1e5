package tokenizer

import (
	"slices"
	"sync"
)

type Vocabulary struct {
	Values []string
	Types  []int32

	BOS, EOS []int32

	valuesOnce sync.Once
	values     map[string]int32

	trieOnce sync.Once
	trie     *Trie
}

func (v *Vocabulary) Size() int {
	return len(v.Values)
}

func (v *Vocabulary) Is(id int32, special Special) bool {
	switch special {
	case SpecialBOS:
		return slices.Contains(v.BOS, id)
	case SpecialEOS:
		return slices.Contains(v.EOS, id)
	default:
		return false
	}
}

// IsControl reports whether id is any special (control) token, not just
// BOS/EOS. Control tokens never participate in grammar matching.
func (v *Vocabulary) IsControl(id int32) bool {
	if id < 0 || int(id) >= len(v.Types) {
		return false
	}
	return v.Types[id] == TokenTypeControl
}

func (v *Vocabulary) Encode(s string) int32 {
	v.valuesOnce.Do(func() {
		v.values = make(map[string]int32, len(v.Values))
		for i, value := range v.Values {
			v.values[value] = int32(i)
		}
	})

	if id, ok := v.values[s]; ok {
		return id
	}

	return -1
}

func (v *Vocabulary) Decode(id int32) string {
	return v.Values[id]
}

// TokenBytes returns the raw byte string a token contributes to the
// decoded output. Control tokens contribute nothing.
func (v *Vocabulary) TokenBytes(id int32) []byte {
	if id < 0 || int(id) >= len(v.Values) || v.IsControl(id) {
		return nil
	}
	return []byte(v.Values[id])
}

// Trie returns the prefix-shared byte trie over all non-control, non-empty
// tokens. It is built once and shared; callers must not modify it.
func (v *Vocabulary) Trie() *Trie {
	v.trieOnce.Do(func() {
		v.trie = buildTrie(v)
	})
	return v.trie
}
