// Package captcha defines the recognizer contract for an out-of-scope
// external collaborator: a black-box function turning challenge image
// bytes into a 4-character solution string. Grounded on
// original_source/crawler/clients/captcha_solver.py, whose CNN model has
// no Go analogue anywhere in the retrieval pack (see DESIGN.md).
package captcha

import (
	"context"
	"fmt"
	"sync"
)

// Alphabet is the 53-glyph character set judge captchas are drawn from,
// copied verbatim from captcha_solver.py: CHAR_SET (ambiguous glyphs
// intentionally excluded).
const Alphabet = "abcdefghkmnpqrstuvwxyzABCDEFGHGKMNOPQRSTUVWXYZ23456789"

// SolutionLength is the fixed length of a captcha solution.
const SolutionLength = 4

// Recognizer turns challenge image bytes into a solution string.
type Recognizer interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// Factory lazily constructs the process-wide Recognizer instance on
// first use. Re-architected from captcha_solver.py's implicit
// module-level `predictor_instance` global into an explicit, injectable
// handle.
type Factory struct {
	once sync.Once
	new  func() (Recognizer, error)
	inst Recognizer
	err  error
}

// NewFactory returns a Factory that calls newFn exactly once, on the first
// Get call, to build the shared Recognizer.
func NewFactory(newFn func() (Recognizer, error)) *Factory {
	return &Factory{new: newFn}
}

// Get returns the process-wide Recognizer, constructing it on first call.
func (f *Factory) Get() (Recognizer, error) {
	f.once.Do(func() {
		f.inst, f.err = f.new()
	})
	return f.inst, f.err
}

// ErrNotConfigured is returned by Unconfigured's Solve: a deliberate
// fail-closed stand-in for environments with no real recognizer wired up,
// so a missing configuration surfaces immediately instead of silently
// emitting garbage solutions.
var ErrNotConfigured = fmt.Errorf("captcha: no recognizer configured")

type unconfigured struct{}

func (unconfigured) Solve(context.Context, []byte) (string, error) {
	return "", ErrNotConfigured
}

// Unconfigured is a Recognizer that always fails closed. Useful as a
// default Factory target in environments without a real recognizer.
func Unconfigured() Recognizer { return unconfigured{} }
