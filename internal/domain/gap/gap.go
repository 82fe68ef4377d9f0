// Package gap turns spatially matched laps into time-gap curves along the
// reference lap's distance axis.
package gap

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/laptrace/internal/domain/spatial"
	"github.com/okian/laptrace/internal/domain/telemetry"
)

// DefaultWindow is the centred moving-average width in samples.
const DefaultWindow = 15

// Point is the smoothed gap (seconds, positive = behind the reference) at a
// reference distance.
type Point struct {
	RefDistance float64
	Gap         float64
}

// Smooth applies a centred moving average of the given width. Near the edges
// only the available neighbours are averaged, so the length is preserved. NaN
// inputs are ignored; a window holding only NaN yields NaN.
func Smooth(xs []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	half := window / 2
	out := make([]float64, len(xs))
	for i := range xs {
		lo, hi := max(0, i-half), min(len(xs)-1, i+half)
		sum, n := 0.0, 0
		for _, v := range xs[lo : hi+1] {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Build computes query time minus reference time for every match in matcher
// order, smooths it, orders the rows by reference distance, drops rows with
// missing values and finally drops the last row, which sits on the finish line
// where end-of-lap wrap-around distorts the match.
func Build(matches []spatial.Match, window int) []Point {
	raw := make([]float64, len(matches))
	for i, m := range matches {
		raw[i] = m.QueryTime - m.RefTime
	}
	smoothed := Smooth(raw, window)

	pts := make([]Point, len(matches))
	for i, m := range matches {
		pts[i] = Point{RefDistance: m.RefDistance, Gap: smoothed[i]}
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].RefDistance < pts[j].RefDistance })

	kept := pts[:0]
	for _, p := range pts {
		if math.IsNaN(p.RefDistance) || math.IsNaN(p.Gap) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept[:len(kept)-1]
}

// Curve is the gap curve of one lap against the reference.
type Curve struct {
	Key    telemetry.LapKey
	Points []Point
	// Matches and Swaps count the matched query samples and how many of them
	// took the second spatial candidate.
	Matches int
	Swaps   int
}

// Skip records a lap left out of the evolution and why.
type Skip struct {
	Key telemetry.LapKey
	Err error
}

// Result holds the curves in input order plus the laps that were skipped.
type Result struct {
	Reference telemetry.LapKey
	Curves    []Curve
	Skipped   []Skip
}

type builder struct {
	matcher *spatial.Matcher
	window  int
}

// Option configures Evolution.
type Option func(*builder)

// WithMatcher replaces the default spatial matcher.
func WithMatcher(m *spatial.Matcher) Option {
	return func(b *builder) {
		if m != nil {
			b.matcher = m
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(n int) Option {
	return func(b *builder) {
		if n > 0 {
			b.window = n
		}
	}
}

// Evolution builds a gap curve for every lap against ref. A lap is never
// compared with itself: laps sharing the reference identity are excluded.
// Degenerate laps are skipped and reported; a degenerate reference is an error.
func Evolution(ref *telemetry.Lap, laps []*telemetry.Lap, opts ...Option) (Result, error) {
	b := &builder{window: DefaultWindow}
	for _, o := range opts {
		o(b)
	}
	if b.matcher == nil {
		b.matcher = spatial.NewMatcher()
	}

	ix, err := spatial.NewIndex(ref.Samples)
	if err != nil {
		return Result{}, fmt.Errorf("gap reference %s: %w", ref.Key, err)
	}

	res := Result{Reference: ref.Key}
	for _, l := range laps {
		if l == nil || l.Key == ref.Key {
			continue
		}
		matches, err := b.matcher.MatchIndex(ix, l.Samples)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Key: l.Key, Err: err})
			continue
		}
		swaps := 0
		for _, m := range matches {
			if m.Swapped {
				swaps++
			}
		}
		res.Curves = append(res.Curves, Curve{
			Key:     l.Key,
			Points:  Build(matches, b.window),
			Matches: len(matches),
			Swaps:   swaps,
		})
	}
	return res, nil
}
