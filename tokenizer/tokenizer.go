// Package tokenizer defines the tokenizer capability consumed by grammar
// matching: mapping between text and token ids, special-token queries and
// vocabulary introspection. Matchers never construct tokenizers; they borrow
// one for their lifetime and treat it as immutable.
package tokenizer

type Special int32

const (
	SpecialBOS Special = iota
	SpecialEOS
)

const (
	TokenTypeNormal int32 = iota + 1
	TokenTypeControl
)

// TextProcessor converts between strings and token ids. Implementations
// must be safe for concurrent use; every method is read-only with respect
// to the processor.
type TextProcessor interface {
	Encode(s string) ([]int32, error)
	Decode(ids []int32) (string, error)
	Is(id int32, special Special) bool
	Vocabulary() *Vocabulary
}
