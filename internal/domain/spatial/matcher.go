package spatial

import (
	"fmt"
	"math"

	"github.com/okian/laptrace/internal/domain/telemetry"
)

const (
	// DefaultTargetSamples is the query lap size after downsampling.
	DefaultTargetSamples = 800
	// DefaultDistanceThreshold is the along-track disagreement (metres) above
	// which the geometrically nearest candidate is distrusted.
	DefaultDistanceThreshold = 500.0
)

// Match pairs a query sample with its equivalent point on the reference path.
type Match struct {
	QueryDistance float64
	QueryTime     float64
	RefDistance   float64
	RefTime       float64
	// Swapped is set when the second nearest candidate was chosen.
	Swapped bool
}

// Matcher aligns laps against a reference path.
type Matcher struct {
	threshold float64
	target    int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithDistanceThreshold overrides DefaultDistanceThreshold.
func WithDistanceThreshold(metres float64) Option {
	return func(m *Matcher) {
		if metres > 0 {
			m.threshold = metres
		}
	}
}

// WithTargetSamples overrides DefaultTargetSamples.
func WithTargetSamples(n int) Option {
	return func(m *Matcher) {
		if n > 1 {
			m.target = n
		}
	}
}

// NewMatcher returns a Matcher with defaults applied.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{threshold: DefaultDistanceThreshold, target: DefaultTargetSamples}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Threshold returns the disambiguation threshold in metres.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match downsamples query and maps every retained sample onto ref.
func (m *Matcher) Match(ref, query []telemetry.Sample) ([]Match, error) {
	ix, err := NewIndex(ref)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	return m.MatchIndex(ix, query)
}

// MatchIndex is Match against a prebuilt reference index.
func (m *Matcher) MatchIndex(ix *Index, query []telemetry.Sample) ([]Match, error) {
	if len(query) < telemetry.MinSamples {
		return nil, fmt.Errorf("query of %d samples: %w", len(query), telemetry.ErrDegenerateLap)
	}
	q := Downsample(query, m.target)
	out := make([]Match, 0, len(q))
	for _, s := range q {
		cands := ix.nearest(s.X, s.Y, 2)
		best := cands[0]
		swapped := false
		if len(cands) > 1 &&
			math.Abs(best.dist-s.Distance) > m.threshold &&
			math.Abs(cands[1].dist-s.Distance) <= m.threshold {
			best = cands[1]
			swapped = true
		}
		out = append(out, Match{
			QueryDistance: s.Distance,
			QueryTime:     s.Time,
			RefDistance:   best.dist,
			RefTime:       best.time,
			Swapped:       swapped,
		})
	}
	return out, nil
}

// Downsample keeps about target samples at a uniform stride, always including
// the first and last sample. Shorter inputs are returned unchanged.
func Downsample(samples []telemetry.Sample, target int) []telemetry.Sample {
	n := len(samples)
	if target < 2 || n <= target {
		return samples
	}
	out := make([]telemetry.Sample, target)
	step := float64(n-1) / float64(target-1)
	for i := range out {
		out[i] = samples[int(math.Round(float64(i)*step))]
	}
	return out
}
