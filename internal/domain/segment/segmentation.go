// Package segment partitions a lap's distance axis into minisectors and ranks
// lap performance per minisector.
package segment

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/laptrace/internal/domain/telemetry"
)

// DefaultCount is the number of equal minisectors used when a track has no
// boundary table.
const DefaultCount = 12

// Segmentation is an ordered set of N+1 strictly increasing distance
// boundaries defining N minisectors.
//
// Index 0 holds distances before the first boundary and index N+1 the tail
// past the last boundary; static tables often stop short of the finish line,
// so the tail is a real segment whose length comes from the laps themselves.
type Segmentation struct {
	bounds []float64
	tail   float64
}

// New validates a boundary table.
func New(bounds []float64) (Segmentation, error) {
	if len(bounds) < 2 {
		return Segmentation{}, fmt.Errorf("%d boundaries: %w", len(bounds), ErrInvalidBounds)
	}
	for i, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return Segmentation{}, fmt.Errorf("boundary %d is %v: %w", i, b, ErrInvalidBounds)
		}
		if i > 0 && b <= bounds[i-1] {
			return Segmentation{}, fmt.Errorf("boundary %d (%v) not above %v: %w", i, b, bounds[i-1], ErrInvalidBounds)
		}
	}
	out := make([]float64, len(bounds))
	copy(out, bounds)
	return Segmentation{bounds: out}, nil
}

// Equal divides [0, maxDistance] into n equal minisectors. Boundaries are
// rounded up to whole metres unless the bins are narrower than a metre.
func Equal(maxDistance float64, n int) (Segmentation, error) {
	if maxDistance <= 0 || math.IsNaN(maxDistance) || math.IsInf(maxDistance, 0) {
		return Segmentation{}, fmt.Errorf("max distance %v: %w", maxDistance, telemetry.ErrDegenerateLap)
	}
	if n < 1 {
		n = DefaultCount
	}
	whole := maxDistance/float64(n) >= 1
	bounds := make([]float64, n+1)
	for i := 1; i < n; i++ {
		bounds[i] = float64(i) * maxDistance / float64(n)
		if whole {
			bounds[i] = math.Ceil(bounds[i])
		}
	}
	bounds[n] = maxDistance
	if whole {
		bounds[n] = math.Ceil(maxDistance)
	}
	return New(bounds)
}

// Resolve picks the static table when one is given, otherwise n equal bins over
// maxDistance. The returned segmentation has its tail sized to maxDistance.
func Resolve(static []float64, maxDistance float64, n int) (Segmentation, error) {
	var (
		s   Segmentation
		err error
	)
	if len(static) > 0 {
		s, err = New(static)
	} else {
		s, err = Equal(maxDistance, n)
	}
	if err != nil {
		return Segmentation{}, err
	}
	return s.WithTail(maxDistance), nil
}

// WithTail sizes the tail segment (past the last boundary) for laps reaching
// maxDistance.
func (s Segmentation) WithTail(maxDistance float64) Segmentation {
	s.tail = 0
	if len(s.bounds) > 0 {
		if t := maxDistance - s.bounds[len(s.bounds)-1]; t > 0 && !math.IsInf(t, 1) {
			s.tail = t
		}
	}
	return s
}

// Bounds returns a copy of the boundaries.
func (s Segmentation) Bounds() []float64 {
	out := make([]float64, len(s.bounds))
	copy(out, s.bounds)
	return out
}

// Count returns N, the number of minisectors between the first and last boundary.
func (s Segmentation) Count() int {
	if len(s.bounds) == 0 {
		return 0
	}
	return len(s.bounds) - 1
}

// Index returns the number of boundaries not exceeding d. A distance exactly on
// a boundary belongs to the segment starting there, except the closing boundary
// when there is no tail: that point closes segment N.
func (s Segmentation) Index(d float64) int {
	i := sort.Search(len(s.bounds), func(i int) bool { return s.bounds[i] > d })
	if i > 1 && i == len(s.bounds) && s.tail == 0 && d == s.bounds[i-1] {
		return i - 1
	}
	return i
}

// Length returns the length of segment i in metres.
func (s Segmentation) Length(i int) float64 {
	switch {
	case i >= 1 && i < len(s.bounds):
		return s.bounds[i] - s.bounds[i-1]
	case i == len(s.bounds) && i > 0:
		return s.tail
	default:
		return 0
	}
}

// Assign maps every sample to its segment index.
func (s Segmentation) Assign(samples []telemetry.Sample) []int {
	out := make([]int, len(samples))
	for i := range samples {
		out[i] = s.Index(samples[i].Distance)
	}
	return out
}
