package submitter

import (
	"context"
	"fmt"
	"sort"
)

// Synthetic is an in-memory Submitter that serves a fixed corpus of test
// cases without any network I/O, used to exercise the Crawler Core's
// state machine deterministically in tests. It plays the role the
// original's test suite gave a hand-rolled fake implementing the
// duck-typed Submitter Protocol.
//
// Calibration is trivial by construction: GetNumber(n) returns
// CalibSlope*n+CalibIntercept directly as the "observed memory", so a
// Crawler Core calibrating against it fits the inverse line (slope
// 1/CalibSlope, intercept -CalibIntercept/CalibSlope). The other probes
// return their answers unscaled, so the default 1, 0 makes decoded values
// equal the raw probe answers.
type Synthetic struct {
	words  []string
	cursor int

	CalibSlope     float64
	CalibIntercept float64

	found []string

	pendingBackjump int
	pendingLen      int
}

// NewSynthetic returns a Synthetic serving the given corpus, deduplicated
// and sorted ascending by byte value — the traversal order the Crawler
// Core's DFS reconstructs it in.
func NewSynthetic(words []string) *Synthetic {
	set := map[string]struct{}{}
	for _, w := range words {
		set[w] = struct{}{}
	}
	unique := make([]string, 0, len(set))
	for w := range set {
		unique = append(unique, w)
	}
	sort.Strings(unique)
	return &Synthetic{
		words:          unique,
		CalibSlope:     1,
		CalibIntercept: 0,
	}
}

// SetCursor repositions the harness as though the first n words of the
// corpus have already been discovered, without replaying FoundTestcase —
// used to seed a Synthetic for checkpoint-resume tests where the Core
// itself is restored mid-traversal.
func (s *Synthetic) SetCursor(n int) {
	s.cursor = n
}

// Found returns the test cases recorded via FoundTestcase so far, in
// emission order.
func (s *Synthetic) Found() []string {
	out := make([]string, len(s.found))
	copy(out, s.found)
	return out
}

func (s *Synthetic) currentTarget() (string, bool) {
	if s.cursor >= len(s.words) {
		return "", false
	}
	return s.words[s.cursor], true
}

func (s *Synthetic) GetNumber(ctx context.Context, n int) (int, error) {
	return int(s.CalibSlope*float64(n) + s.CalibIntercept), nil
}

func (s *Synthetic) GetNextChar(ctx context.Context, prefix string, limit int) (int, error) {
	target, ok := s.currentTarget()
	if !ok {
		return 0, fmt.Errorf("synthetic: get_next_char called with no remaining corpus words")
	}
	if len(prefix) >= len(target) {
		return 0, nil
	}
	return int(target[len(prefix)]), nil
}

func (s *Synthetic) FoundTestcase(ctx context.Context, testcase string) error {
	s.found = append(s.found, testcase)
	s.cursor++
	return nil
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func (s *Synthetic) GetPrefixLengthLength(ctx context.Context, prefix string) (int, error) {
	target, ok := s.currentTarget()
	if !ok {
		s.pendingBackjump, s.pendingLen = 0, 0
		return -1, nil
	}

	bj := len(prefix) - commonPrefixLen(prefix, target)
	length := 1
	for (1 << uint(8*length)) <= bj {
		length++
	}
	s.pendingBackjump = bj
	s.pendingLen = length
	return length, nil
}

func (s *Synthetic) GetPrefixLength(ctx context.Context, prefix string, partial int, position int) (int, error) {
	if position < 0 || position >= s.pendingLen {
		return 0, fmt.Errorf("synthetic: get_prefix_length called with position %d outside [0,%d)", position, s.pendingLen)
	}
	return (s.pendingBackjump >> uint(8*position)) & 0xFF, nil
}
