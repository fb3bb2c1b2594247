// Package submitter exposes the side-channel queries at the integer
// layer. Two implementations exist: Live (backed by a real OJ Client and
// account pool) and Synthetic (an in-memory harness for tests), matching
// the original's dynamic-duck-typed Submitter protocol
// (original_source/crawler/core/crawler_core.py: the Submitter Protocol)
// re-architected here as an explicit Go interface.
package submitter

import "context"

// Submitter answers the five probe queries the Crawler Core drives. The
// four query methods return the judged memory reading; the Crawler Core
// decodes it through its calibrated model into the value each method
// describes below.
type Submitter interface {
	// GetNumber returns the memory footprint of a program whose logic
	// encodes the integer n. Used only during calibration.
	GetNumber(ctx context.Context, n int) (int, error)

	// GetNextChar answers with the integer v such that the next byte of
	// the hidden test case after prefix satisfies v < limit, or 0 to
	// signal end-of-testcase.
	GetNextChar(ctx context.Context, prefix string, limit int) (int, error)

	// GetPrefixLengthLength returns the byte-length needed to represent
	// the back-jump length, or -1 to signal "no more test cases".
	GetPrefixLengthLength(ctx context.Context, prefix string) (int, error)

	// GetPrefixLength returns the byte at position of a little-endian
	// length value being assembled from partial.
	GetPrefixLength(ctx context.Context, prefix string, partial int, position int) (int, error)

	// FoundTestcase records a completed test case. Must be idempotent on
	// (problem, content).
	FoundTestcase(ctx context.Context, testcase string) error
}
