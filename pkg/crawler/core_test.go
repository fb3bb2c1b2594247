package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/submitter"
)

func TestFreshRunEmitsBothTestcasesInOrder(t *testing.T) {
	s := submitter.NewSynthetic([]string{"ab", "ac"})
	core := New(s, nil)

	err := core.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, core.Done())
	assert.Equal(t, []string{"ab", "ac"}, s.Found())
}

func TestResumeAfterPrefixDiscovery(t *testing.T) {
	s := submitter.NewSynthetic([]string{"ab", "ac"})
	s.SetCursor(1) // "ab" already found

	slope, intercept := 1.0, 0.0
	cp := model.Checkpoint{
		Phase:     model.PhaseFindingPrefixLengthLen,
		Prefix:    "ab",
		Limit:     256,
		Slope:     &slope,
		Intercept: &intercept,
	}

	core, err := Resume(s, nil, cp)
	require.NoError(t, err)

	err = core.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, core.Done())
	assert.Equal(t, []string{"ac"}, s.Found())
}

// assemblyProbe is a minimal hand-rolled Submitter double used only to
// exercise the FINDING_PREFIX_LENGTH resume mechanics in isolation: how
// many more get_prefix_length calls are made, and whether the phase
// transitions, without needing a real corpus whose back-jump arithmetic
// happens to stay in range for an artificially long length field.
type assemblyProbe struct {
	prefixLengthCalls int
}

func (a *assemblyProbe) GetNumber(context.Context, int) (int, error) { return 0, nil }
func (a *assemblyProbe) GetNextChar(context.Context, string, int) (int, error) {
	return 0, nil
}
func (a *assemblyProbe) GetPrefixLengthLength(context.Context, string) (int, error) {
	return 0, nil
}
func (a *assemblyProbe) GetPrefixLength(context.Context, string, int, int) (int, error) {
	a.prefixLengthCalls++
	return 0, nil // folds in as the low-order byte; final prefix_length = 256
}
func (a *assemblyProbe) FoundTestcase(context.Context, string) error { return nil }

func TestResumeMidLengthAssembly(t *testing.T) {
	longPrefix := make([]byte, 300)
	for i := range longPrefix {
		longPrefix[i] = 'x'
	}

	probe := &assemblyProbe{}
	slope, intercept := 1.0, 0.0
	cp := model.Checkpoint{
		Phase:              model.PhaseFindingPrefixLength,
		Prefix:             string(longPrefix),
		Limit:              256,
		PrefixLengthLength: 2,
		PrefixLength:       1,
		Position:           0,
		Slope:              &slope,
		Intercept:          &intercept,
	}

	// Pause right at the next phase boundary after the single remaining
	// get_prefix_length call: the first two checks (loop entry, then
	// before the lone probe) must pass, the third (after the transition
	// to FINDING_NEXT_CHAR) must stop the Core.
	pauseCalls := 0
	pause := func() bool {
		pauseCalls++
		return pauseCalls > 2
	}
	core, err := Resume(probe, pause, cp)
	require.NoError(t, err)

	err = core.Run(context.Background())
	require.ErrorIs(t, err, ErrPaused)
	assert.Equal(t, 1, probe.prefixLengthCalls)
	assert.Equal(t, model.PhaseFindingNextChar, core.Checkpoint().Phase)
}

func TestEmptyCorpusEmitsOnlyEmptyString(t *testing.T) {
	s := submitter.NewSynthetic([]string{""})
	core := New(s, nil)

	err := core.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, core.Done())
	assert.Equal(t, []string{""}, s.Found())
}

func TestPauseYieldsResumableCheckpoint(t *testing.T) {
	s := submitter.NewSynthetic([]string{"ab", "ac"})
	calls := 0
	pause := func() bool {
		calls++
		return calls > 6 // let calibration + a couple probes run, then stop
	}
	core := New(s, pause)

	err := core.Run(context.Background())
	require.ErrorIs(t, err, ErrPaused)
	assert.False(t, core.Done())

	cp := core.Checkpoint()
	require.NoError(t, cp.Validate())

	resumed, err := Resume(s, nil, cp)
	require.NoError(t, err)
	require.NoError(t, resumed.Run(context.Background()))
	assert.True(t, resumed.Done())
}

func TestDecodedValueOutOfRangeIsProtocolError(t *testing.T) {
	s := submitter.NewSynthetic([]string{"ab"})
	s.CalibSlope = 1
	s.CalibIntercept = 1000 // forces every decoded value far out of [0,255]
	core := New(s, nil)

	err := core.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPaused)
}
