// Package automaton compiles a grammar specification into a byte-level
// nondeterministic automaton and steps it one byte at a time. Character
// classes are expanded to UTF-8 byte-range sequences at compile time, so
// multi-byte codepoints are indivisible: a byte that would split a
// codepoint into a sequence the grammar rejects is itself rejected.
//
// State sets are persistent: Step never mutates its input, so a caller
// can snapshot a state by value and later resume from it, which is what
// matcher rollback relies on.
package automaton

import (
	"slices"
	"sync"
)

type opcode uint8

const (
	// opRange consumes one byte in [Lo, Hi] and continues at Next.
	opRange opcode = iota
	// opSplit continues at both Next and Alt without consuming input.
	opSplit
	// opMatch accepts.
	opMatch
)

type inst struct {
	Next uint32
	Alt  uint32
	Op   opcode
	Lo   byte
	Hi   byte
}

// Machine is a compiled grammar automaton. It is immutable and safe for
// concurrent use by any number of matchers.
type Machine struct {
	insts []inst
	start StateSet

	scratch sync.Pool // *[]bool visited marks, len(insts)
}

// StateSet is the set of byte-consuming instructions the automaton may be
// at, plus whether any path has reached accept. The zero value is the
// dead state. StateSets are immutable once returned.
type StateSet struct {
	pcs    []uint32
	accept bool
}

// Live reports whether any continuation or acceptance remains.
func (s StateSet) Live() bool {
	return len(s.pcs) > 0 || s.accept
}

func (m *Machine) getVisited() *[]bool {
	v := m.scratch.Get().(*[]bool)
	clear(*v)
	return v
}

// Start returns the initial state.
func (m *Machine) Start() StateSet {
	return m.start
}

// NumInst returns the compiled instruction count.
func (m *Machine) NumInst() int {
	return len(m.insts)
}

// Accepting reports whether the input consumed so far is a complete match.
func (m *Machine) Accepting(s StateSet) bool {
	return s.accept
}

// NoExtension reports whether no further byte can ever be consumed. Every
// byte-consuming instruction has a live continuation by construction, so
// this is simply the absence of such instructions.
func (m *Machine) NoExtension(s StateSet) bool {
	return len(s.pcs) == 0
}

// Step advances the state by one input byte. It reports false when the
// byte is rejected, in which case the returned state is dead.
func (m *Machine) Step(s StateSet, b byte) (StateSet, bool) {
	visited := m.getVisited()
	var out StateSet
	for _, pc := range s.pcs {
		in := m.insts[pc]
		if in.Lo <= b && b <= in.Hi {
			m.closure(&out, in.Next, *visited)
		}
	}
	m.scratch.Put(visited)
	if !out.Live() {
		return StateSet{}, false
	}
	slices.Sort(out.pcs)
	return out, true
}

// closure follows split edges from pc, collecting byte-consuming
// instructions and the accept flag.
func (m *Machine) closure(out *StateSet, pc uint32, visited []bool) {
	for {
		if visited[pc] {
			return
		}
		visited[pc] = true
		switch in := m.insts[pc]; in.Op {
		case opRange:
			out.pcs = append(out.pcs, pc)
			return
		case opMatch:
			out.accept = true
			return
		case opSplit:
			m.closure(out, in.Alt, visited)
			pc = in.Next
		}
	}
}

// ViableBytes returns the set of bytes the automaton can consume next.
func (m *Machine) ViableBytes(s StateSet) *[256]bool {
	var viable [256]bool
	for _, pc := range s.pcs {
		in := m.insts[pc]
		for b := int(in.Lo); b <= int(in.Hi); b++ {
			viable[b] = true
		}
	}
	return &viable
}

// maxForcedBytes caps a single forced-byte query as a guard against
// degenerate grammars forcing unbounded runs.
const maxForcedBytes = 4096

// ForcedBytes returns the longest byte run the grammar forces from s: as
// long as the state is not accepting and exactly one next byte is viable,
// that byte is forced. The result is empty as soon as any branching (or
// the option to stop) exists.
func (m *Machine) ForcedBytes(s StateSet) []byte {
	var forced []byte
	for len(forced) < maxForcedBytes {
		if s.accept {
			break
		}
		b, ok := m.soleViableByte(s)
		if !ok {
			break
		}
		next, ok := m.Step(s, b)
		if !ok {
			break
		}
		forced = append(forced, b)
		s = next
	}
	return forced
}

func (m *Machine) soleViableByte(s StateSet) (byte, bool) {
	viable := m.ViableBytes(s)
	sole, found := 0, false
	for b, v := range viable {
		if !v {
			continue
		}
		if found {
			return 0, false
		}
		sole, found = b, true
	}
	return byte(sole), found
}
