package automaton

import (
	"unicode"
	"unicode/utf8"
)

type byteRange struct {
	lo, hi byte
}

// utf8Sequences returns byte-range sequences that together match exactly
// the UTF-8 encodings of the scalar values in [lo, hi]. Surrogates are
// skipped. Each sequence is a chain of consecutive byte ranges; a rune
// matches if each of its encoded bytes falls in the corresponding range.
func utf8Sequences(lo, hi rune) [][]byteRange {
	if hi > unicode.MaxRune {
		hi = unicode.MaxRune
	}
	if lo < 0 {
		lo = 0
	}
	if lo > hi {
		return nil
	}

	// Surrogates are not scalar values; split around them.
	if lo <= 0xDFFF && hi >= 0xD800 {
		var out [][]byteRange
		out = append(out, utf8Sequences(lo, 0xD7FF)...)
		out = append(out, utf8Sequences(0xE000, hi)...)
		return out
	}

	// Split at encoded-length boundaries so both ends encode to the
	// same number of bytes.
	for _, boundary := range []rune{0x7F, 0x7FF, 0xFFFF} {
		if lo <= boundary && boundary < hi {
			var out [][]byteRange
			out = append(out, utf8Sequences(lo, boundary)...)
			out = append(out, utf8Sequences(boundary+1, hi)...)
			return out
		}
	}

	var lb, hb [4]byte
	n := utf8.EncodeRune(lb[:], lo)
	utf8.EncodeRune(hb[:], hi)
	return sameLenSequences(lb[:n], hb[:n])
}

func sameLenSequences(lo, hi []byte) [][]byteRange {
	if len(lo) == 1 {
		return [][]byteRange{{{lo[0], hi[0]}}}
	}
	if lo[0] == hi[0] {
		return prependAll(byteRange{lo[0], lo[0]}, sameLenSequences(lo[1:], hi[1:]))
	}

	var out [][]byteRange
	loFirst, hiLast := lo[0], hi[0]
	if !allBytes(lo[1:], 0x80) {
		out = append(out, prependAll(byteRange{lo[0], lo[0]}, sameLenSequences(lo[1:], maxCont(len(lo)-1)))...)
		loFirst++
	}
	if !allBytes(hi[1:], 0xBF) {
		out = append(out, prependAll(byteRange{hi[0], hi[0]}, sameLenSequences(minCont(len(hi)-1), hi[1:]))...)
		hiLast--
	}
	if loFirst <= hiLast {
		seq := []byteRange{{loFirst, hiLast}}
		for i := 1; i < len(lo); i++ {
			seq = append(seq, byteRange{0x80, 0xBF})
		}
		out = append(out, seq)
	}
	return out
}

func prependAll(r byteRange, seqs [][]byteRange) [][]byteRange {
	for i, seq := range seqs {
		seqs[i] = append([]byteRange{r}, seq...)
	}
	return seqs
}

func allBytes(b []byte, v byte) bool {
	for _, c := range b {
		if c != v {
			return false
		}
	}
	return true
}

func minCont(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0x80
	}
	return b
}

func maxCont(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xBF
	}
	return b
}
