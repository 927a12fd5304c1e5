package matcher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// MaskBuffer is a row-major token bitmask: one row per sequence, one bit
// per vocabulary token. Rows are 32-bit words, padding bits zero; bit t of
// a row lives in word t/32 at position t%32, which in little-endian byte
// order is byte t/8, bit t%8.
type MaskBuffer struct {
	words       []uint32
	rows        int
	wordsPerRow int
}

// AllocTokenBitmask allocates a zeroed mask buffer for the given number of
// sequences over a vocabulary of vocabSize tokens.
func AllocTokenBitmask(rows, vocabSize int) *MaskBuffer {
	wordsPerRow := (vocabSize + 31) / 32
	return &MaskBuffer{
		words:       make([]uint32, rows*wordsPerRow),
		rows:        rows,
		wordsPerRow: wordsPerRow,
	}
}

func (b *MaskBuffer) Rows() int        { return b.rows }
func (b *MaskBuffer) WordsPerRow() int { return b.wordsPerRow }

// Row returns the words of one row, aliasing the buffer.
func (b *MaskBuffer) Row(i int) []uint32 {
	return b.words[i*b.wordsPerRow : (i+1)*b.wordsPerRow]
}

// IsSet reports whether token t is allowed in the given row.
func (b *MaskBuffer) IsSet(row int, t int32) bool {
	return b.Row(row)[t/32]&(1<<(t%32)) != 0
}

// WordsPerRow returns the row width, in 32-bit words, a mask for this
// matcher's vocabulary needs.
func (m *Matcher) WordsPerRow() int {
	return (m.vocab.Size() + 31) / 32
}

func (m *Matcher) fillWords(words []uint32) {
	clear(words)
	for t, ok := range m.allowedTokens() {
		if ok {
			words[t/32] |= 1 << (t % 32)
		}
	}
}

// ComputeBitmask returns the allowed-token bitmask for the current state
// as little-endian bytes: bit t at byte t/8, bit t%8.
func (m *Matcher) ComputeBitmask() []byte {
	words := make([]uint32, m.WordsPerRow())
	m.fillWords(words)
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// FillTokenBitmask writes the allowed-token mask into one row of buf. The
// row must be in bounds and the buffer row width must match the matcher's
// vocabulary.
func (m *Matcher) FillTokenBitmask(buf *MaskBuffer, row int) error {
	if buf == nil {
		return errors.New("Null pointer")
	}
	if row < 0 || row >= buf.rows {
		return fmt.Errorf("Target index out of bounds: %d (rows: %d)", row, buf.rows)
	}
	if buf.wordsPerRow != m.WordsPerRow() {
		return fmt.Errorf("Invalid buffer size: %d words per row, expected %d", buf.wordsPerRow, m.WordsPerRow())
	}
	m.fillWords(buf.Row(row))
	return nil
}

// UnsafeFillTokenBitmask writes one mask row to raw memory, for callers
// holding externally allocated tensors. ptr must be non-null, 4-byte
// aligned, and point to exactly rowBytes writable bytes; rowBytes must be
// the matcher's row width.
func (m *Matcher) UnsafeFillTokenBitmaskPtr(ptr uintptr, rowBytes int) error {
	if ptr == 0 {
		return errors.New("Null pointer")
	}
	if ptr%4 != 0 {
		return errors.New("Pointer not aligned")
	}
	if rowBytes != m.WordsPerRow()*4 {
		return fmt.Errorf("Invalid buffer size: %d bytes, expected %d", rowBytes, m.WordsPerRow()*4)
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(ptr)), rowBytes/4)
	m.fillWords(words)
	return nil
}
