package captcha

import "context"

// Stub is a deterministic Recognizer for tests and offline use: it ignores
// the image bytes and always returns a fixed solution. It never fails,
// unlike Unconfigured, so test harnesses that exercise the full
// registration flow don't need a real CNN to drive it.
type Stub struct {
	Solution string
}

// NewStub returns a Stub that solves every challenge as "aaaa" unless
// overridden.
func NewStub() *Stub {
	return &Stub{Solution: "aaaa"}
}

func (s *Stub) Solve(context.Context, []byte) (string, error) {
	if s.Solution == "" {
		return "aaaa", nil
	}
	return s.Solution, nil
}
