package tokenizer

import "fmt"

// ByteTokenizer is the canonical byte-level tokenizer: one token per byte
// value plus BOS and EOS control tokens. Tokenization of any byte string
// is unique, so token-level fast-forward always agrees with re-tokenizing
// the forced bytes.
type ByteTokenizer struct {
	vocab *Vocabulary
}

var _ TextProcessor = (*ByteTokenizer)(nil)

func NewByteTokenizer() *ByteTokenizer {
	values := make([]string, 258)
	types := make([]int32, 258)
	for i := 0; i < 256; i++ {
		values[i] = string([]byte{byte(i)})
		types[i] = TokenTypeNormal
	}
	values[256], types[256] = "<s>", TokenTypeControl
	values[257], types[257] = "</s>", TokenTypeControl

	return &ByteTokenizer{
		vocab: &Vocabulary{
			Values: values,
			Types:  types,
			BOS:    []int32{256},
			EOS:    []int32{257},
		},
	}
}

func (t *ByteTokenizer) Encode(s string) ([]int32, error) {
	ids := make([]int32, len(s))
	for i := 0; i < len(s); i++ {
		ids[i] = int32(s[i])
	}
	return ids, nil
}

func (t *ByteTokenizer) Decode(ids []int32) (string, error) {
	b := make([]byte, 0, len(ids))
	for _, id := range ids {
		if id < 0 || int(id) >= t.vocab.Size() {
			return "", fmt.Errorf("tokenizer: token %d out of range [0, %d)", id, t.vocab.Size())
		}
		b = append(b, t.vocab.TokenBytes(id)...)
	}
	return string(b), nil
}

func (t *ByteTokenizer) Is(id int32, special Special) bool {
	return t.vocab.Is(id, special)
}

func (t *ByteTokenizer) Vocabulary() *Vocabulary {
	return t.vocab
}
