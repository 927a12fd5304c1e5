package tokenizer

// Trie is a byte-level prefix trie over the vocabulary. Mask computation
// walks it with a parser state per node so that a shared prefix of many
// tokens is matched against the grammar exactly once, and a rejected
// prefix prunes its whole subtree.
type Trie struct {
	nodes []TrieNode

	// extra holds further token ids ending at a node, keyed by node
	// index. Vocabularies routinely contain distinct ids with identical
	// byte strings; all of them share one terminal node.
	extra map[int32][]int32
}

// TrieNode is one byte of one or more tokens. Children form a singly
// linked sibling list. Token is the first token ending at this node, -1
// for interior-only nodes; duplicate ids are reported by ExtraTokens.
type TrieNode struct {
	FirstChild  int32
	NextSibling int32
	Token       int32
	Byte        byte
}

const trieRoot = int32(0)

func buildTrie(v *Vocabulary) *Trie {
	t := &Trie{nodes: make([]TrieNode, 1, len(v.Values)*4)}
	t.nodes[0] = TrieNode{FirstChild: -1, NextSibling: -1, Token: -1}

	for i := range v.Values {
		id := int32(i)
		if v.IsControl(id) || len(v.Values[i]) == 0 {
			continue
		}
		t.insert([]byte(v.Values[i]), id)
	}
	return t
}

func (t *Trie) insert(bytes []byte, token int32) {
	cur := trieRoot
	for _, b := range bytes {
		next := int32(-1)
		for c := t.nodes[cur].FirstChild; c != -1; c = t.nodes[c].NextSibling {
			if t.nodes[c].Byte == b {
				next = c
				break
			}
		}
		if next == -1 {
			next = int32(len(t.nodes))
			t.nodes = append(t.nodes, TrieNode{
				FirstChild:  -1,
				NextSibling: t.nodes[cur].FirstChild,
				Token:       -1,
				Byte:        b,
			})
			t.nodes[cur].FirstChild = next
		}
		cur = next
	}
	if t.nodes[cur].Token == -1 {
		t.nodes[cur].Token = token
		return
	}
	if t.extra == nil {
		t.extra = make(map[int32][]int32)
	}
	t.extra[cur] = append(t.extra[cur], token)
}

func (t *Trie) Root() int32 {
	return trieRoot
}

func (t *Trie) Node(i int32) TrieNode {
	return t.nodes[i]
}

func (t *Trie) Len() int {
	return len(t.nodes)
}

// ExtraTokens returns the token ids beyond Node(i).Token whose byte
// string ends at node i, nil for all but duplicated vocabulary entries.
func (t *Trie) ExtraTokens(i int32) []int32 {
	return t.extra[i]
}
