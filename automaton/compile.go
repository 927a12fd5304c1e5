package automaton

import (
	"fmt"

	"github.com/tokenmask/tokenmask/grammar"
)

// Limits bounds automaton compilation.
type Limits struct {
	// MaxNestingDepth bounds simultaneous expansions of the same rule.
	// Recursive grammars (JSON values inside JSON values) are compiled
	// by inlining; past this depth the occurrence compiles to the empty
	// language, so deeper nesting is rejected at match time rather than
	// at construction.
	MaxNestingDepth int

	// MaxInstructions aborts compilation of pathologically large
	// grammars.
	MaxInstructions int
}

const (
	defaultMaxNestingDepth = 8
	defaultMaxInstructions = 1 << 20
)

func (l *Limits) withDefaults() Limits {
	out := Limits{MaxNestingDepth: defaultMaxNestingDepth, MaxInstructions: defaultMaxInstructions}
	if l != nil {
		if l.MaxNestingDepth > 0 {
			out.MaxNestingDepth = l.MaxNestingDepth
		}
		if l.MaxInstructions > 0 {
			out.MaxInstructions = l.MaxInstructions
		}
	}
	return out
}

// Compile lowers a validated grammar specification into a byte-level
// automaton. Construction is eager: structural problems (unresolved
// references, oversize grammars, grammars matching nothing) fail here,
// never at match time.
func Compile(spec *grammar.Spec, limits *Limits) (*Machine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{
		spec:   spec,
		lim:    limits.withDefaults(),
		active: make(map[refKey]int),
	}

	root := spec.Root()
	f, failed, err := c.compile(root, root.Rules[root.Start])
	if err != nil {
		return nil, err
	}
	if failed {
		return nil, fmt.Errorf("automaton: grammar matches no strings")
	}

	match, err := c.emit(inst{Op: opMatch})
	if err != nil {
		return nil, err
	}
	c.patchAll(f.out, match)

	m := &Machine{insts: c.insts}
	m.scratch.New = func() any {
		v := make([]bool, len(m.insts))
		return &v
	}

	visited := make([]bool, len(m.insts))
	var start StateSet
	m.closure(&start, f.start, visited)
	m.start = start
	return m, nil
}

type refKey struct {
	grammar string
	rule    string
}

type compiler struct {
	spec   *grammar.Spec
	lim    Limits
	insts  []inst
	active map[refKey]int
}

// frag is a partially built automaton piece: an entry pc and the dangling
// exits still to be patched.
type frag struct {
	start uint32
	out   []patchSite
}

type patchSite struct {
	pc  uint32
	alt bool
}

func (c *compiler) emit(in inst) (uint32, error) {
	if len(c.insts) >= c.lim.MaxInstructions {
		return 0, fmt.Errorf("automaton: grammar too large (over %d instructions)", c.lim.MaxInstructions)
	}
	c.insts = append(c.insts, in)
	return uint32(len(c.insts) - 1), nil
}

func (c *compiler) patchAll(sites []patchSite, target uint32) {
	for _, p := range sites {
		if p.alt {
			c.insts[p.pc].Alt = target
		} else {
			c.insts[p.pc].Next = target
		}
	}
}

func (c *compiler) epsilon() (frag, error) {
	pc, err := c.emit(inst{Op: opSplit})
	if err != nil {
		return frag{}, err
	}
	return frag{start: pc, out: []patchSite{{pc, false}, {pc, true}}}, nil
}

// compile returns the fragment for n in grammar g. failed means n matches
// the empty language (recursion cut off by the depth limit); failing
// pieces are pruned by their enclosing construct so that every emitted
// byte instruction keeps a live continuation.
func (c *compiler) compile(g *grammar.Grammar, n grammar.Node) (f frag, failed bool, err error) {
	switch n := n.(type) {
	case grammar.Empty:
		f, err = c.epsilon()
		return f, false, err

	case grammar.Literal:
		if len(n) == 0 {
			f, err = c.epsilon()
			return f, false, err
		}
		return c.compileBytes([]byte(n))

	case grammar.CharClass:
		var seqs [][]byteRange
		for _, r := range n.Ranges {
			seqs = append(seqs, utf8Sequences(r.Lo, r.Hi)...)
		}
		if len(seqs) == 0 {
			return frag{}, true, nil
		}
		frags := make([]frag, 0, len(seqs))
		for _, seq := range seqs {
			sf, err := c.compileSeq(seq)
			if err != nil {
				return frag{}, false, err
			}
			frags = append(frags, sf)
		}
		f, err = c.alternate(frags)
		return f, false, err

	case grammar.Concat:
		return c.compileConcat(g, n)

	case grammar.Alt:
		var frags []frag
		for _, branch := range n {
			bf, bfailed, err := c.compile(g, branch)
			if err != nil {
				return frag{}, false, err
			}
			if bfailed {
				continue
			}
			frags = append(frags, bf)
		}
		if len(frags) == 0 {
			return frag{}, true, nil
		}
		f, err = c.alternate(frags)
		return f, false, err

	case grammar.Repeat:
		return c.compileRepeat(g, n)

	case grammar.SepList:
		return c.compileSepList(g, n)

	case grammar.Ref:
		return c.compileRef(g, n)

	default:
		return frag{}, false, fmt.Errorf("automaton: unknown node %T", n)
	}
}

func (c *compiler) compileBytes(b []byte) (frag, bool, error) {
	var f frag
	for i, by := range b {
		pc, err := c.emit(inst{Op: opRange, Lo: by, Hi: by})
		if err != nil {
			return frag{}, false, err
		}
		if i == 0 {
			f.start = pc
		} else {
			c.patchAll(f.out, pc)
		}
		f.out = []patchSite{{pc, false}}
	}
	return f, false, nil
}

func (c *compiler) compileSeq(seq []byteRange) (frag, error) {
	var f frag
	for i, r := range seq {
		pc, err := c.emit(inst{Op: opRange, Lo: r.lo, Hi: r.hi})
		if err != nil {
			return frag{}, err
		}
		if i == 0 {
			f.start = pc
		} else {
			c.patchAll(f.out, pc)
		}
		f.out = []patchSite{{pc, false}}
	}
	return f, nil
}

func (c *compiler) alternate(frags []frag) (frag, error) {
	f := frags[0]
	for _, g := range frags[1:] {
		pc, err := c.emit(inst{Op: opSplit, Next: f.start, Alt: g.start})
		if err != nil {
			return frag{}, err
		}
		f = frag{start: pc, out: append(f.out, g.out...)}
	}
	return f, nil
}

func (c *compiler) compileConcat(g *grammar.Grammar, n grammar.Concat) (frag, bool, error) {
	if len(n) == 0 {
		f, err := c.epsilon()
		return f, false, err
	}
	var f frag
	started := false
	for _, part := range n {
		pf, failed, err := c.compile(g, part)
		if err != nil || failed {
			return frag{}, failed, err
		}
		if !started {
			f, started = pf, true
		} else {
			c.patchAll(f.out, pf.start)
			f.out = pf.out
		}
	}
	return f, false, nil
}

func (c *compiler) compileRepeat(g *grammar.Grammar, n grammar.Repeat) (frag, bool, error) {
	// {0,0} matches exactly the empty string; the body never runs.
	if n.Max == 0 {
		f, err := c.epsilon()
		return f, false, err
	}

	// A failing body repeated zero times is the empty string; repeated a
	// positive minimum it fails outright.
	probe, failed, err := c.compile(g, n.Node)
	if err != nil {
		return frag{}, false, err
	}
	if failed {
		if n.Min == 0 {
			f, err := c.epsilon()
			return f, false, err
		}
		return frag{}, true, nil
	}

	f, body := probe, probe
	for i := 1; i < n.Min; i++ {
		next, _, err := c.compile(g, n.Node)
		if err != nil {
			return frag{}, false, err
		}
		c.patchAll(f.out, next.start)
		f.out = next.out
		body = next
	}

	if n.Max < 0 {
		// Unbounded tail: loop the last body copy behind a split.
		loop, err := c.emit(inst{Op: opSplit, Next: body.start})
		if err != nil {
			return frag{}, false, err
		}
		c.patchAll(f.out, loop)
		if n.Min == 0 {
			return frag{start: loop, out: []patchSite{{loop, true}}}, false, nil
		}
		return frag{start: f.start, out: []patchSite{{loop, true}}}, false, nil
	}

	if n.Min == 0 {
		// The probe copy becomes the first optional occurrence.
		skip, err := c.emit(inst{Op: opSplit, Next: f.start})
		if err != nil {
			return frag{}, false, err
		}
		f = frag{start: skip, out: append(f.out, patchSite{skip, true})}
	}
	for i := max(n.Min, 1); i < n.Max; i++ {
		body, _, err := c.compile(g, n.Node)
		if err != nil {
			return frag{}, false, err
		}
		skip, err := c.emit(inst{Op: opSplit, Next: body.start})
		if err != nil {
			return frag{}, false, err
		}
		c.patchAll(f.out, skip)
		f.out = append(body.out, patchSite{skip, true})
	}
	return f, false, nil
}

func (c *compiler) compileSepList(g *grammar.Grammar, n grammar.SepList) (frag, bool, error) {
	elem, failed, err := c.compile(g, n.Elem)
	if err != nil {
		return frag{}, false, err
	}
	if failed {
		if n.MinOne {
			return frag{}, true, nil
		}
		f, err := c.epsilon()
		return f, false, err
	}

	sep, sepFailed, err := c.compile(g, n.Sep)
	if err != nil {
		return frag{}, false, err
	}

	f := frag{start: elem.start}
	if sepFailed {
		// Unrepeatable separator degrades the list to a single element.
		f.out = elem.out
	} else {
		join, err := c.emit(inst{Op: opSplit, Next: sep.start})
		if err != nil {
			return frag{}, false, err
		}
		c.patchAll(elem.out, join)
		c.patchAll(sep.out, elem.start)
		f.out = []patchSite{{join, true}}
	}

	if n.MinOne {
		return f, false, nil
	}
	skip, err := c.emit(inst{Op: opSplit, Next: f.start})
	if err != nil {
		return frag{}, false, err
	}
	return frag{start: skip, out: append(f.out, patchSite{skip, true})}, false, nil
}

func (c *compiler) compileRef(g *grammar.Grammar, n grammar.Ref) (frag, bool, error) {
	target := g
	node, ok := g.Rules[string(n)]
	if !ok {
		target = c.spec.ByName(string(n))
		if target == nil {
			return frag{}, false, fmt.Errorf("automaton: undefined rule %q", string(n))
		}
		node = target.Rules[target.Start]
	}

	key := refKey{grammar: target.Name, rule: string(n)}
	if c.active[key] >= c.lim.MaxNestingDepth {
		return frag{}, true, nil
	}
	c.active[key]++
	f, failed, err := c.compile(target, node)
	c.active[key]--
	return f, failed, err
}
