// Package regression fits and evaluates a 1-D linear map from observed
// judge memory usage to the encoded integer it represents. Ported from
// original_source/orange-juice-backend/crawler/core/linear_regression.py.
package regression

import (
	"errors"
	"fmt"
	"math"
)

// ErrTooFewPoints is returned by Calibrate when fewer than two samples have
// been added.
var ErrTooFewPoints = errors.New("regression: need at least 2 points to calibrate")

// ErrDegenerate is returned by Calibrate when every sample shares the same
// x value, making the slope undefined.
var ErrDegenerate = errors.New("regression: all x values are identical")

type point struct {
	x, y float64
}

// Model is a least-squares simple linear regression over accumulated (x, y)
// samples, where x is observed memory and y is the encoded integer.
type Model struct {
	points    []point
	slope     float64
	intercept float64
	fitted    bool
}

// New returns an uncalibrated Model.
func New() *Model {
	return &Model{}
}

// AddPoint appends a sample and invalidates any cached coefficients.
func (m *Model) AddPoint(x, y float64) {
	m.points = append(m.points, point{x, y})
	m.fitted = false
}

// Calibrate computes slope and intercept from all accumulated samples.
func (m *Model) Calibrate() error {
	n := len(m.points)
	if n < 2 {
		return ErrTooFewPoints
	}

	var xSum, ySum float64
	for _, p := range m.points {
		xSum += p.x
		ySum += p.y
	}
	xMean := xSum / float64(n)
	yMean := ySum / float64(n)

	var numerator, denominator float64
	for _, p := range m.points {
		dx := p.x - xMean
		numerator += dx * (p.y - yMean)
		denominator += dx * dx
	}
	if denominator == 0 {
		return ErrDegenerate
	}

	m.slope = numerator / denominator
	m.intercept = yMean - m.slope*xMean
	m.fitted = true
	return nil
}

// Predict returns slope*x + intercept. Calling Predict before a successful
// Calibrate (or LoadCoefficients) panics, matching the documented "undefined
// before calibration" contract — callers are expected to check Calibrated().
func (m *Model) Predict(x float64) float64 {
	if !m.fitted {
		panic("regression: Predict called before calibration")
	}
	return m.slope*x + m.intercept
}

// DecodeInt rounds Predict(x) to the nearest integer using round-half-away-
// from-zero (math.Round), the tie-break convention fixed for the lifetime
// of a problem's extraction.
func (m *Model) DecodeInt(x float64) int {
	return int(math.Round(m.Predict(x)))
}

// Calibrated reports whether the model currently holds fitted coefficients,
// either from Calibrate or from LoadCoefficients.
func (m *Model) Calibrated() bool {
	return m.fitted
}

// Coefficients exposes (slope, intercept) for checkpointing. Calling this
// before calibration returns an error rather than zero values, so callers
// never accidentally persist an uncalibrated model as if it were fitted.
func (m *Model) Coefficients() (slope, intercept float64, err error) {
	if !m.fitted {
		return 0, 0, fmt.Errorf("regression: model not calibrated")
	}
	return m.slope, m.intercept, nil
}

// LoadCoefficients rehydrates a Model from a previously persisted
// (slope, intercept) pair without re-accumulating samples, for checkpoint
// resume.
func (m *Model) LoadCoefficients(slope, intercept float64) {
	m.slope = slope
	m.intercept = intercept
	m.fitted = true
	m.points = nil
}
