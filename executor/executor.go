// Package executor fans mask computation for a batch of sequences out
// over a bounded worker pool. Each request pairs a matcher with the
// buffer row it owns; rows are disjoint, so workers never contend.
package executor

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tokenmask/tokenmask/matcher"
)

// Request names the buffer row a matcher's mask goes to.
type Request struct {
	Matcher *matcher.Matcher
	Index   int
}

// Executor owns only a concurrency bound; matchers and buffers are
// borrowed per call. It is safe for concurrent use as long as no matcher
// appears in two in-flight calls.
type Executor struct {
	threads int
}

// NewExecutor returns an executor running at most numThreads mask
// computations at once. numThreads <= 0 selects a default of 80% of
// GOMAXPROCS, clamped to [1, 32].
func NewExecutor(numThreads int) *Executor {
	if numThreads <= 0 {
		numThreads = runtime.GOMAXPROCS(0) * 4 / 5
		numThreads = min(max(numThreads, 1), 32)
	}
	return &Executor{threads: numThreads}
}

// validate checks the whole batch before any row is written: requests
// must be well formed, rows in bounds, and no matcher used twice.
func validate(reqs []Request, rows int) error {
	if len(reqs) == 0 {
		return errors.New("Expecting a list of (matcher, index) pairs")
	}
	seen := make(map[*matcher.Matcher]struct{}, len(reqs))
	for _, r := range reqs {
		if r.Matcher == nil {
			return errors.New("Expecting a (matcher, index) pair")
		}
		if r.Index < 0 || r.Index >= rows {
			return fmt.Errorf("Target index out of bounds: %d (rows: %d)", r.Index, rows)
		}
		if _, dup := seen[r.Matcher]; dup {
			return errors.New("Already borrowed: matcher used in more than one request")
		}
		seen[r.Matcher] = struct{}{}
	}
	return nil
}

// FillTokenBitmask computes every request's mask into its row of buf and
// waits for all of them. The result is identical to filling the rows
// sequentially.
func (e *Executor) FillTokenBitmask(reqs []Request, buf *matcher.MaskBuffer) error {
	if buf == nil {
		return errors.New("Null pointer")
	}
	if err := validate(reqs, buf.Rows()); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(e.threads)
	for _, r := range reqs {
		r := r
		g.Go(func() error {
			return r.Matcher.FillTokenBitmask(buf, r.Index)
		})
	}
	return g.Wait()
}

// UnsafeFillTokenBitmaskPtr is FillTokenBitmask over raw memory: ptr
// addresses numRows rows of rowBytes bytes each. The pointer, alignment
// and every matcher's row width are validated before any write.
func (e *Executor) UnsafeFillTokenBitmaskPtr(reqs []Request, ptr uintptr, rowBytes, numRows int) error {
	if ptr == 0 {
		return errors.New("Null pointer")
	}
	if ptr%4 != 0 {
		return errors.New("Pointer not aligned")
	}
	if rowBytes <= 0 || rowBytes%4 != 0 {
		return fmt.Errorf("Invalid buffer size: %d bytes per row", rowBytes)
	}
	if err := validate(reqs, numRows); err != nil {
		return err
	}
	for _, r := range reqs {
		if want := r.Matcher.WordsPerRow() * 4; rowBytes != want {
			return fmt.Errorf("Invalid buffer size: %d bytes per row, expected %d", rowBytes, want)
		}
	}

	var g errgroup.Group
	g.SetLimit(e.threads)
	for _, r := range reqs {
		r := r
		g.Go(func() error {
			return r.Matcher.UnsafeFillTokenBitmaskPtr(ptr+uintptr(r.Index*rowBytes), rowBytes)
		})
	}
	return g.Wait()
}
