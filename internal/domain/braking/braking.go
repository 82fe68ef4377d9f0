// Package braking derives brake channels and braking distances from lap
// telemetry.
package braking

import (
	"math"

	"github.com/okian/laptrace/internal/domain/resample"
	"github.com/okian/laptrace/internal/domain/telemetry"
)

const (
	// DefaultDecelThreshold is the per-sample speed drop (km/h) that marks an
	// ideal braking point.
	DefaultDecelThreshold = 1.5
	// Pressed is the brake value above which a sample counts as braking.
	Pressed = 0.5
)

// Gradient returns the per-sample derivative of xs with unit spacing, using
// central differences inside and one-sided differences at both ends.
func Gradient(xs []float64) []float64 {
	n := len(xs)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = xs[1] - xs[0]
	out[n-1] = xs[n-1] - xs[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (xs[i+1] - xs[i-1]) / 2
	}
	return out
}

// IdealBrake marks (1) every sample where speed falls faster than threshold
// per sample, else 0.
func IdealBrake(speeds []float64, threshold float64) []float64 {
	out := Gradient(speeds)
	for i, g := range out {
		if g < -threshold {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}

// Distance sums the distance covered while the brake is pressed. Each sample
// contributes the distance travelled since the previous sample; steps with a
// non-finite distance are ignored.
func Distance(samples []telemetry.Sample) float64 {
	total := 0.0
	for i := 1; i < len(samples); i++ {
		if samples[i].Brake <= Pressed {
			continue
		}
		if d := samples[i].Distance - samples[i-1].Distance; !math.IsNaN(d) && !math.IsInf(d, 0) {
			total += d
		}
	}
	return total
}

// Point is one row of a brake comparison on the reference distance grid.
type Point struct {
	Distance   float64
	Reference  float64
	Competitor float64
}

// Compare projects the competitor's brake channel onto the reference lap's
// distance grid next to the reference's ideal brake trace. Outside the
// competitor's distance range the brake reads 0.
func Compare(ref, competitor []telemetry.Sample, threshold float64) ([]Point, error) {
	speeds := make([]float64, len(ref))
	grid := make([]float64, len(ref))
	for i, s := range ref {
		speeds[i] = s.Speed
		grid[i] = s.Distance
	}
	ideal := IdealBrake(speeds, threshold)

	dist := make([]float64, len(competitor))
	brake := make([]float64, len(competitor))
	for i, s := range competitor {
		dist[i] = s.Distance
		brake[i] = s.Brake
	}
	aligned, err := resample.Linear(dist, brake, grid, 0)
	if err != nil {
		return nil, err
	}

	out := make([]Point, len(ref))
	for i := range ref {
		out[i] = Point{Distance: grid[i], Reference: ideal[i], Competitor: aligned[i]}
	}
	return out, nil
}
