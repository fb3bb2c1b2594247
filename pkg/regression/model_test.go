package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrateRecoversExactLine(t *testing.T) {
	m := New()
	// y = 2x + 1, noiseless.
	for _, x := range []float64{-1, 63, 127, 191, 255} {
		m.AddPoint(x, 2*x+1)
	}
	require.NoError(t, m.Calibrate())

	slope, intercept, err := m.Coefficients()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)

	for _, x := range []float64{-1, 63, 127, 191, 255} {
		assert.Equal(t, int(2*x+1), m.DecodeInt(x))
	}
}

func TestCalibrateTooFewPoints(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.Calibrate(), ErrTooFewPoints)

	m.AddPoint(1, 1)
	assert.ErrorIs(t, m.Calibrate(), ErrTooFewPoints)
}

func TestCalibrateDegenerateFailsCleanly(t *testing.T) {
	m := New()
	m.AddPoint(5, 1)
	m.AddPoint(5, 2)
	m.AddPoint(5, 3)
	assert.ErrorIs(t, m.Calibrate(), ErrDegenerate)
	assert.False(t, m.Calibrated())
}

func TestPredictBeforeCalibrationPanics(t *testing.T) {
	m := New()
	assert.Panics(t, func() { m.Predict(10) })
}

func TestLoadCoefficientsRoundTrip(t *testing.T) {
	m := New()
	m.AddPoint(0, 0)
	m.AddPoint(10, 20)
	require.NoError(t, m.Calibrate())
	slope, intercept, err := m.Coefficients()
	require.NoError(t, err)

	m2 := New()
	m2.LoadCoefficients(slope, intercept)
	assert.Equal(t, m.Predict(4), m2.Predict(4))
}

func TestCoefficientsBeforeCalibrationErrors(t *testing.T) {
	m := New()
	_, _, err := m.Coefficients()
	assert.Error(t, err)
}
