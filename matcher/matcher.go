// Package matcher maintains per-sequence grammar state during token
// decoding. A Matcher wraps a compiled grammar automaton together with a
// tokenizer and answers, at every decoding step, which tokens from the
// vocabulary keep the output inside the grammar.
//
// Errors are sticky: once a consume operation fails, the matcher stays in
// the errored state (stop reason InternalError, EOS-only masks) until
// Rollback discards the offending step.
package matcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/tokenmask/tokenmask/automaton"
	"github.com/tokenmask/tokenmask/grammar"
	"github.com/tokenmask/tokenmask/internal/logutil"
	"github.com/tokenmask/tokenmask/tokenizer"
)

// StopReason says why a matcher no longer advances.
type StopReason int

const (
	// NotStopped means the matcher still accepts further tokens.
	NotStopped StopReason = iota
	// NoExtension means no byte can extend the current output; only EOS
	// remains.
	NoExtension
	// EndOfSequence means EOS was consumed.
	EndOfSequence
	// InternalError means the matcher is in the sticky error state.
	InternalError
)

func (r StopReason) String() string {
	switch r {
	case NotStopped:
		return "NotStopped"
	case NoExtension:
		return "NoExtension"
	case EndOfSequence:
		return "EndOfSequence"
	case InternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Matcher tracks one decoded sequence against a grammar. It is not safe
// for concurrent use; use DeepCopy to fork independent sequences.
type Matcher struct {
	tp     tokenizer.TextProcessor
	vocab  *tokenizer.Vocabulary
	prog   *automaton.Machine
	logger *slog.Logger

	state automaton.StateSet

	// history holds the committed tokens; snaps[i] is the automaton state
	// before history[i], snaps[len(history)] the current state. Rollback
	// truncates both.
	history []int32
	snaps   []automaton.StateSet

	stop StopReason
	err  error
}

// New compiles the grammar and binds it to the tokenizer. logLevel is
// 0 silent, 1 warnings, 2 info, 3 trace.
func New(tp tokenizer.TextProcessor, spec *grammar.Spec, logLevel int) (*Matcher, error) {
	if tp == nil {
		return nil, errors.New("matcher: nil tokenizer")
	}
	prog, err := automaton.Compile(spec, nil)
	if err != nil {
		return nil, err
	}

	m := &Matcher{
		tp:     tp,
		vocab:  tp.Vocabulary(),
		prog:   prog,
		logger: logutil.NewLogger(os.Stderr, logutil.LevelFromVerbosity(logLevel)),
		state:  prog.Start(),
		snaps:  []automaton.StateSet{prog.Start()},
	}
	if prog.NoExtension(m.state) {
		m.stop = NoExtension
	}
	logutil.Trace(m.logger, "matcher created", "instructions", prog.NumInst(), "vocab", m.vocab.Size())
	return m, nil
}

// fail puts the matcher into the sticky error state.
func (m *Matcher) fail(err error) error {
	m.err = err
	return err
}

func (m *Matcher) isEOS(t int32) bool {
	return m.vocab.Is(t, tokenizer.SpecialEOS)
}

func (m *Matcher) rejectErr(t int32) error {
	return fmt.Errorf("token %d (%q) doesn't satisfy the grammar", t, m.vocab.Decode(t))
}

// ConsumeToken commits one token. EOS is accepted when the output is a
// complete match, or as a no-op once the matcher has stopped; any other
// token must extend the match. Failure leaves the committed history
// untouched and the matcher in the sticky error state.
func (m *Matcher) ConsumeToken(t int32) error {
	if m.err != nil {
		return m.err
	}
	if t < 0 || int(t) >= m.vocab.Size() {
		return m.fail(fmt.Errorf("token %d out of range [0, %d)", t, m.vocab.Size()))
	}

	if m.isEOS(t) {
		if m.stop == NotStopped {
			if !m.prog.Accepting(m.state) {
				return m.fail(m.rejectErr(t))
			}
			m.stop = EndOfSequence
		}
		m.commit(t)
		return nil
	}

	if m.stop != NotStopped || m.vocab.IsControl(t) {
		return m.fail(m.rejectErr(t))
	}

	state := m.state
	for _, b := range m.vocab.TokenBytes(t) {
		next, ok := m.prog.Step(state, b)
		if !ok {
			return m.fail(m.rejectErr(t))
		}
		state = next
	}
	m.state = state
	m.commit(t)
	if m.prog.NoExtension(state) {
		m.stop = NoExtension
	}
	logutil.Trace(m.logger, "consumed token", "token", t, "text", m.vocab.Decode(t), "accepting", m.prog.Accepting(state))
	return nil
}

func (m *Matcher) commit(t int32) {
	m.history = append(m.history, t)
	m.snaps = append(m.snaps, m.state)
}

// ConsumeTokens commits tokens in order, stopping at the first failure.
// Tokens before the failure stay committed.
func (m *Matcher) ConsumeTokens(tokens []int32) error {
	for _, t := range tokens {
		if err := m.ConsumeToken(t); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTokens reports how many tokens of the given sequence, in order,
// the matcher could consume from its current state. The matcher state is
// not advanced. An out-of-range token is an error, not a rejection: it
// returns 0 and puts the matcher into the sticky error state.
func (m *Matcher) ValidateTokens(tokens []int32) (int, error) {
	if m.err != nil {
		return 0, m.err
	}

	state, stop := m.state, m.stop
	n := 0
	for _, t := range tokens {
		if t < 0 || int(t) >= m.vocab.Size() {
			return 0, m.fail(fmt.Errorf("token %d out of range [0, %d)", t, m.vocab.Size()))
		}
		if m.isEOS(t) {
			if stop == NotStopped && !m.prog.Accepting(state) {
				break
			}
			stop = EndOfSequence
			n++
			continue
		}
		if stop != NotStopped || m.vocab.IsControl(t) {
			break
		}
		next, ok := m.stepToken(state, t)
		if !ok {
			break
		}
		state = next
		if m.prog.NoExtension(state) {
			stop = NoExtension
		}
		n++
	}
	return n, nil
}

func (m *Matcher) stepToken(state automaton.StateSet, t int32) (automaton.StateSet, bool) {
	for _, b := range m.vocab.TokenBytes(t) {
		next, ok := m.prog.Step(state, b)
		if !ok {
			return automaton.StateSet{}, false
		}
		state = next
	}
	return state, true
}

// TryConsumeTokens commits the longest consumable prefix of tokens and
// returns its length. A grammar rejection partway through is not an
// error; the matcher keeps running after the committed prefix.
func (m *Matcher) TryConsumeTokens(tokens []int32) (int, error) {
	n, err := m.ValidateTokens(tokens)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		if err := m.ConsumeToken(tokens[i]); err != nil {
			return i, err
		}
	}
	return n, nil
}

// Rollback uncommits the last n tokens, restoring the matcher to the
// state it was in before them. It clears the sticky error and stop state;
// what remains is re-derived from the restored position.
func (m *Matcher) Rollback(n int) error {
	if n < 0 || n > len(m.history) {
		return fmt.Errorf("can't roll back %d tokens, only %d consumed", n, len(m.history))
	}
	keep := len(m.history) - n
	m.history = m.history[:keep]
	m.snaps = m.snaps[:keep+1]
	m.state = m.snaps[keep]
	m.err = nil

	switch {
	case keep > 0 && m.isEOS(m.history[keep-1]):
		m.stop = EndOfSequence
	case m.prog.NoExtension(m.state):
		m.stop = NoExtension
	default:
		m.stop = NotStopped
	}
	return nil
}

// DeepCopy returns an independent matcher at the same position. The
// compiled automaton and tokenizer are shared; they are immutable.
func (m *Matcher) DeepCopy() *Matcher {
	c := *m
	c.history = slices.Clone(m.history)
	c.snaps = slices.Clone(m.snaps)
	return &c
}

// IsAccepting reports whether the output consumed so far is a complete
// match, i.e. whether EOS is currently allowed.
func (m *Matcher) IsAccepting() bool {
	return m.err == nil && m.prog.Accepting(m.state)
}

// IsStopped reports whether the matcher can no longer advance (for any
// reason, including the error state).
func (m *Matcher) IsStopped() bool {
	return m.StopReason() != NotStopped
}

func (m *Matcher) StopReason() StopReason {
	if m.err != nil {
		return InternalError
	}
	return m.stop
}

func (m *Matcher) IsError() bool {
	return m.err != nil
}

// GetError returns the sticky error, or nil.
func (m *Matcher) GetError() error {
	return m.err
}

// TokenCount returns the number of committed tokens.
func (m *Matcher) TokenCount() int {
	return len(m.history)
}

// VocabSize returns the size of the bound vocabulary, which is the number
// of mask bits per row.
func (m *Matcher) VocabSize() int {
	return m.vocab.Size()
}

// allowedTokens marks every token the matcher can consume next. A stopped
// or errored matcher allows exactly the EOS tokens.
func (m *Matcher) allowedTokens() []bool {
	allowed := make([]bool, m.vocab.Size())
	if m.err != nil || m.stop != NotStopped {
		for _, id := range m.vocab.EOS {
			allowed[id] = true
		}
		return allowed
	}

	if m.prog.Accepting(m.state) {
		for _, id := range m.vocab.EOS {
			allowed[id] = true
		}
	}

	// Walk the vocabulary trie depth-first, one automaton step per trie
	// node. A rejected byte prunes every token below it.
	trie := m.vocab.Trie()
	type frame struct {
		node  int32
		state automaton.StateSet
	}
	var stack []frame
	for c := trie.Node(trie.Root()).FirstChild; c != -1; c = trie.Node(c).NextSibling {
		stack = append(stack, frame{c, m.state})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := trie.Node(f.node)
		state, ok := m.prog.Step(f.state, n.Byte)
		if !ok {
			continue
		}
		if n.Token >= 0 {
			allowed[n.Token] = true
			for _, id := range trie.ExtraTokens(f.node) {
				allowed[id] = true
			}
		}
		for c := n.FirstChild; c != -1; c = trie.Node(c).NextSibling {
			stack = append(stack, frame{c, state})
		}
	}
	return allowed
}

// ComputeLogitBias returns one byte per token: biasAllowed for tokens the
// matcher can consume next, 0 for the rest.
func (m *Matcher) ComputeLogitBias() []byte {
	const biasAllowed = 200

	allowed := m.allowedTokens()
	bias := make([]byte, len(allowed))
	for t, ok := range allowed {
		if ok {
			bias[t] = biasAllowed
		}
	}
	return bias
}

// ComputeFFBytes returns the bytes the grammar forces next: the longest
// run where exactly one byte is viable and stopping is not an option.
func (m *Matcher) ComputeFFBytes() []byte {
	if m.err != nil || m.stop != NotStopped {
		return nil
	}
	return m.prog.ForcedBytes(m.state)
}

// ComputeFFTokens returns the forced bytes as token ids. Bytes the
// tokenizer cannot represent yield no tokens.
func (m *Matcher) ComputeFFTokens() []int32 {
	ff := m.ComputeFFBytes()
	if len(ff) == 0 {
		return nil
	}
	tokens, err := m.tp.Encode(string(ff))
	if err != nil {
		return nil
	}
	return tokens
}
