// Package crawler implements the Crawler Core: the resumable
// depth-first traversal that reconstructs a problem's hidden test cases
// from the side channel one Submitter probe at a time. Grounded on
// original_source/orange-juice-backend/crawler/core/crawler_core.py's
// CrawlerCore, translated from its try/except-driven run loop into
// explicit Go error returns.
package crawler

import (
	"context"
	"fmt"

	"github.com/wangicheng/orange-juice/pkg/metrics"
	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/regression"
	"github.com/wangicheng/orange-juice/pkg/submitter"
)

// calibrationProbes is the fixed arithmetic progression NEEDS_PREDICT
// samples: -1, 63, 127, 191, 255 — five points from -1 stepping by 64 up
// to but not exceeding 255.
var calibrationProbes = []int{-1, 63, 127, 191, 255}

// ShouldPause is polled at most once per probe and at every phase
// boundary; returning true cooperatively suspends Run, which then
// returns ErrPaused so the caller can checkpoint and stop.
type ShouldPause func() bool

// ErrPaused is returned by Run when ShouldPause reported true before
// reaching DONE. The Core's state is left exactly at the safe point
// where the pause was observed; Checkpoint() reflects it faithfully.
var ErrPaused = fmt.Errorf("crawler: paused")

// Core is a single-threaded, resumable DFS state machine. It is not safe
// for concurrent use; the Orchestrator confines one Core to one
// goroutine.
type Core struct {
	submitter submitter.Submitter
	pause     ShouldPause

	phase              model.CrawlPhase
	prefix             string
	limit              int
	prefixLengthLength int
	prefixLength       int
	position           int

	calib *regression.Model
}

// New returns a Core starting fresh at NEEDS_PREDICT.
func New(s submitter.Submitter, pause ShouldPause) *Core {
	if pause == nil {
		pause = func() bool { return false }
	}
	return &Core{
		submitter: s,
		pause:     pause,
		phase:     model.PhaseNeedsPredict,
		limit:     256,
		calib:     regression.New(),
	}
}

// Resume rebuilds a Core from a previously saved Checkpoint.
func Resume(s submitter.Submitter, pause ShouldPause, cp model.Checkpoint) (*Core, error) {
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("crawler: invalid checkpoint: %w", err)
	}
	c := New(s, pause)
	c.phase = cp.Phase
	c.prefix = cp.Prefix
	c.limit = cp.Limit
	c.prefixLengthLength = cp.PrefixLengthLength
	c.prefixLength = cp.PrefixLength
	c.position = cp.Position
	if cp.Slope != nil && cp.Intercept != nil {
		c.calib.LoadCoefficients(*cp.Slope, *cp.Intercept)
	}
	return c, nil
}

// Checkpoint captures the Core's current state for persistence. Safe to
// call at any point Run has returned control to the caller (on ErrPaused,
// on a non-nil non-ErrPaused error, or after reaching DONE).
func (c *Core) Checkpoint() model.Checkpoint {
	cp := model.Checkpoint{
		Phase:              c.phase,
		Prefix:             c.prefix,
		Limit:              c.limit,
		PrefixLengthLength: c.prefixLengthLength,
		PrefixLength:       c.prefixLength,
		Position:           c.position,
	}
	if c.calib.Calibrated() {
		slope, intercept, err := c.calib.Coefficients()
		if err == nil {
			cp.Slope = &slope
			cp.Intercept = &intercept
		}
	}
	return cp
}

// Done reports whether the Core has reached the DONE phase.
func (c *Core) Done() bool {
	return c.phase == model.PhaseDone
}

// decode rounds a raw memory reading through the calibrated model and
// enforces the documented byte-value protocol: decoded values outside
// [0,255] are a protocol error, except for get_prefix_length_length,
// whose caller handles -1 itself.
func (c *Core) decode(mem int, allowNegOne bool) (int, error) {
	v := c.calib.DecodeInt(float64(mem))
	if v == -1 && allowNegOne {
		return v, nil
	}
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("crawler: decoded value %d out of range [0,255]", v)
	}
	return v, nil
}

// Run drives the state machine until it reaches DONE, a pause is
// observed, or a probe/decode error occurs. On any return other than nil
// the Core's fields are left in a consistent, checkpointable state.
func (c *Core) Run(ctx context.Context) error {
	if c.phase == model.PhaseNeedsPredict {
		if err := c.runPredict(ctx); err != nil {
			return err
		}
		c.prefix = ""
		c.limit = 256
		c.phase = model.PhaseFindingNextChar
	}

	for c.phase != model.PhaseDone {
		if c.pause() {
			return ErrPaused
		}

		switch c.phase {
		case model.PhaseFindingNextChar:
			if err := c.runFindingNextChar(ctx); err != nil {
				return err
			}
		case model.PhaseFindingPrefixLengthLen:
			if err := c.runFindingPrefixLengthLength(ctx); err != nil {
				return err
			}
		case model.PhaseFindingPrefixLength:
			if err := c.runFindingPrefixLength(ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("crawler: unknown phase %q", c.phase)
		}
	}
	return nil
}

func (c *Core) runPredict(ctx context.Context) error {
	fitted := regression.New()
	for _, n := range calibrationProbes {
		mem, err := c.submitter.GetNumber(ctx, n)
		if err != nil {
			return fmt.Errorf("crawler: calibration probe %d: %w", n, err)
		}
		fitted.AddPoint(float64(mem), float64(n))
	}
	if err := fitted.Calibrate(); err != nil {
		metrics.CalibrationFailuresTotal.Inc()
		return fmt.Errorf("crawler: calibration: %w", err)
	}
	c.calib = fitted
	return nil
}

func (c *Core) runFindingNextChar(ctx context.Context) error {
	for {
		if c.pause() {
			return ErrPaused
		}
		mem, err := c.submitter.GetNextChar(ctx, c.prefix, c.limit)
		if err != nil {
			return fmt.Errorf("crawler: get_next_char: %w", err)
		}
		v, err := c.decode(mem, false)
		if err != nil {
			return err
		}
		if v == 0 {
			if err := c.submitter.FoundTestcase(ctx, c.prefix); err != nil {
				return fmt.Errorf("crawler: found_testcase: %w", err)
			}
			c.phase = model.PhaseFindingPrefixLengthLen
			return nil
		}
		c.prefix += string(rune(v))
		c.limit = 256
	}
}

func (c *Core) runFindingPrefixLengthLength(ctx context.Context) error {
	mem, err := c.submitter.GetPrefixLengthLength(ctx, c.prefix)
	if err != nil {
		return fmt.Errorf("crawler: get_prefix_length_length: %w", err)
	}
	v, err := c.decode(mem, true)
	if err != nil {
		return err
	}
	if v == -1 {
		c.phase = model.PhaseDone
		return nil
	}
	c.prefixLengthLength = v
	c.prefixLength = 0
	c.position = v - 1
	c.phase = model.PhaseFindingPrefixLength
	return nil
}

func (c *Core) runFindingPrefixLength(ctx context.Context) error {
	for c.position >= 0 {
		if c.pause() {
			return ErrPaused
		}
		mem, err := c.submitter.GetPrefixLength(ctx, c.prefix, c.prefixLength, c.position)
		if err != nil {
			return fmt.Errorf("crawler: get_prefix_length: %w", err)
		}
		v, err := c.decode(mem, false)
		if err != nil {
			return err
		}
		c.prefixLength = c.prefixLength*256 + v
		c.position--
	}

	if c.prefixLength < 0 || c.prefixLength > len(c.prefix) {
		return fmt.Errorf("crawler: assembled prefix_length %d out of range for prefix of length %d", c.prefixLength, len(c.prefix))
	}
	if c.prefixLength == len(c.prefix) {
		// Mirrors the original's unchecked ord(prefix[prefix_length])
		// indexing: a back-jump equal to the full prefix length has no
		// byte left to bound the next branch on.
		return fmt.Errorf("crawler: prefix_length %d leaves no byte to bound the next branch", c.prefixLength)
	}

	c.limit = int(c.prefix[c.prefixLength])
	c.prefix = c.prefix[:c.prefixLength]
	c.phase = model.PhaseFindingNextChar
	return nil
}
