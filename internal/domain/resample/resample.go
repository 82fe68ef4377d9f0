// Package resample projects a channel sampled along one lap's distance axis
// onto another distance grid.
package resample

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// ErrMismatchedLengths is returned when distance and value slices differ in length.
var ErrMismatchedLengths = errors.New("mismatched resample input lengths")

// Linear interpolates (srcDist, srcVal) at every grid distance. Inside the
// source range the value is linearly interpolated; outside it the result is
// exactly fill, never extrapolated. Source distances must be non-decreasing;
// repeated distances keep their first value.
func Linear(srcDist, srcVal, grid []float64, fill float64) ([]float64, error) {
	if len(srcDist) != len(srcVal) {
		return nil, fmt.Errorf("%d distances, %d values: %w", len(srcDist), len(srcVal), ErrMismatchedLengths)
	}
	xs, ys := dedupe(srcDist, srcVal)

	out := make([]float64, len(grid))
	switch len(xs) {
	case 0:
		for i := range out {
			out[i] = fill
		}
		return out, nil
	case 1:
		for i, g := range grid {
			out[i] = fill
			if g == xs[0] {
				out[i] = ys[0]
			}
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	lo, hi := xs[0], xs[len(xs)-1]
	for i, g := range grid {
		if g < lo || g > hi {
			out[i] = fill
			continue
		}
		out[i] = pl.Predict(g)
	}
	return out, nil
}

// dedupe keeps the first sample of every run of equal distances and drops any
// sample that would step backwards, so the result is strictly increasing.
func dedupe(dist, val []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(dist))
	ys := make([]float64, 0, len(val))
	for i, d := range dist {
		if math.IsNaN(d) {
			continue
		}
		if n := len(xs); n > 0 && d <= xs[n-1] {
			continue
		}
		xs = append(xs, d)
		ys = append(ys, val[i])
	}
	return xs, ys
}
