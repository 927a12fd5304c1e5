package tokenizer

// Slice is precomputed acceleration data narrowing tokenizer behavior for
// a grammar domain: a regex describing a family of tokens that tends to be
// admitted or rejected wholesale (JSON strings, runs of plain text).
// Slices never change what Encode or Decode produce; consumers are free to
// use them to skip per-token work and equally free to ignore them.
type Slice struct {
	Regex string
}

// GeneralSlices returns slice data useful for most grammars.
func GeneralSlices() []Slice {
	return []Slice{
		{Regex: `[a-zA-Z0-9_\- ]+`},
		{Regex: `[\x{80}-\x{10FFFF}]+`},
	}
}

// JSONSlices returns slice data tuned for JSON-shaped grammars.
func JSONSlices() []Slice {
	return []Slice{
		{Regex: `"[^"\\\x00-\x1f]*"`},
		{Regex: `[^"\\\x00-\x1f]+`},
		{Regex: `[0-9]+`},
	}
}

type slicedProcessor struct {
	TextProcessor
	slices []Slice
}

// WithSlices attaches slice data to a processor. Tokenization behavior is
// unchanged.
func WithSlices(tp TextProcessor, slices []Slice) TextProcessor {
	return &slicedProcessor{TextProcessor: tp, slices: append([]Slice(nil), slices...)}
}

// Slices reports the slice data attached to tp, if any.
func Slices(tp TextProcessor) []Slice {
	if sp, ok := tp.(*slicedProcessor); ok {
		return sp.slices
	}
	return nil
}
