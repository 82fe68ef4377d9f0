package segment

import (
	"math"
	"sort"

	"github.com/okian/laptrace/internal/domain/telemetry"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultSpeedFloor is the lowest mean speed (km/h) used when converting a
// segment's mean speed into time, so stationary samples cannot divide by zero.
const DefaultSpeedFloor = 1.0

const kmhPerMS = 3.6

// LapSamples is one competitor's lap as fed to Aggregate.
type LapSamples struct {
	Key     telemetry.LapKey
	Samples []telemetry.Sample
}

// Stat is one lap's performance inside one segment.
type Stat struct {
	Key       telemetry.LapKey
	MeanSpeed float64 // km/h
	MinSpeed  float64 // km/h
	Time      float64 // estimated seconds spent in the segment
	Samples   int
}

// Summary describes one segment across all laps that have samples in it.
type Summary struct {
	Index   int
	Length  float64
	Label   string
	Fastest telemetry.LapKey
	// Gain is the mean time of every other lap minus the fastest lap's time.
	Gain  float64
	Stats []Stat
}

// Stat returns the entry for key.
func (s Summary) Stat(key telemetry.LapKey) (Stat, bool) {
	for _, st := range s.Stats {
		if st.Key == key {
			return st, true
		}
	}
	return Stat{}, false
}

// Table is the per-segment result of Aggregate, sorted by segment index.
type Table struct {
	seg       Segmentation
	summaries []Summary
	byIndex   map[int]int
}

// Segmentation returns the segmentation the table was built from.
func (t Table) Segmentation() Segmentation { return t.seg }

// Segments returns every summary in ascending index order.
func (t Table) Segments() []Summary { return t.summaries }

// Segment looks up the summary for index i.
func (t Table) Segment(i int) (Summary, bool) {
	pos, ok := t.byIndex[i]
	if !ok {
		return Summary{}, false
	}
	return t.summaries[pos], true
}

// Lookup returns the summary of the segment containing distance d.
func (t Table) Lookup(d float64) (Summary, bool) {
	return t.Segment(t.seg.Index(d))
}

// TimeIn returns the estimated time key spent in segment i.
func (t Table) TimeIn(i int, key telemetry.LapKey) (float64, bool) {
	s, ok := t.Segment(i)
	if !ok {
		return 0, false
	}
	st, ok := s.Stat(key)
	return st.Time, ok
}

type aggregator struct {
	labels     map[int]string
	thresholds Thresholds
	floor      float64
}

// Option configures Aggregate.
type Option func(*aggregator)

// WithLabels supplies a static label table keyed by segment index. Segments
// missing from the table fall back to speed classification.
func WithLabels(labels map[int]string) Option {
	return func(a *aggregator) { a.labels = labels }
}

// WithThresholds overrides the speed classification cut-offs.
func WithThresholds(t Thresholds) Option {
	return func(a *aggregator) { a.thresholds = t }
}

// WithSpeedFloor overrides DefaultSpeedFloor.
func WithSpeedFloor(kmh float64) Option {
	return func(a *aggregator) {
		if kmh > 0 {
			a.floor = kmh
		}
	}
}

type cell struct {
	segment int
	lap     int
}

// Aggregate computes, for every segment with at least one usable sample, each lap's
// mean and minimum speed and estimated time, the fastest lap and its gain over
// the others, and the segment label. The result is deterministic for a given
// input order; ties on mean speed go to the earlier lap. Samples with a
// non-finite distance or speed are ignored.
func Aggregate(laps []LapSamples, seg Segmentation, opts ...Option) Table {
	a := &aggregator{thresholds: DefaultThresholds, floor: DefaultSpeedFloor}
	for _, o := range opts {
		o(a)
	}

	speeds := make(map[cell][]float64)
	present := make(map[int]struct{})
	for li, l := range laps {
		for _, s := range l.Samples {
			if !finite(s.Distance) || !finite(s.Speed) {
				continue
			}
			c := cell{segment: seg.Index(s.Distance), lap: li}
			speeds[c] = append(speeds[c], s.Speed)
			present[c.segment] = struct{}{}
		}
	}

	indexes := make([]int, 0, len(present))
	for i := range present {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	t := Table{seg: seg, summaries: make([]Summary, 0, len(indexes)), byIndex: make(map[int]int, len(indexes))}
	for _, idx := range indexes {
		sum := Summary{Index: idx, Length: seg.Length(idx)}
		minSpeed := 0.0
		for li, l := range laps {
			xs, ok := speeds[cell{segment: idx, lap: li}]
			if !ok {
				continue
			}
			st := Stat{
				Key:       l.Key,
				MeanSpeed: stat.Mean(xs, nil),
				MinSpeed:  floats.Min(xs),
				Samples:   len(xs),
			}
			st.Time = a.timeFor(sum.Length, st.MeanSpeed)
			if len(sum.Stats) == 0 || st.MinSpeed < minSpeed {
				minSpeed = st.MinSpeed
			}
			sum.Stats = append(sum.Stats, st)
		}

		best := 0
		for i := 1; i < len(sum.Stats); i++ {
			if sum.Stats[i].MeanSpeed > sum.Stats[best].MeanSpeed {
				best = i
			}
		}
		sum.Fastest = sum.Stats[best].Key
		sum.Gain = gain(sum.Stats, best)

		if label, ok := a.labels[idx]; ok {
			sum.Label = label
		} else {
			sum.Label = a.thresholds.Label(minSpeed)
		}

		t.byIndex[idx] = len(t.summaries)
		t.summaries = append(t.summaries, sum)
	}
	return t
}

func (a *aggregator) timeFor(length, meanSpeed float64) float64 {
	if length <= 0 {
		return 0
	}
	v := meanSpeed
	if v < a.floor {
		v = a.floor
	}
	return length / (v / kmhPerMS)
}

// gain is mean(time of laps other than the fastest) minus the fastest time.
// Laps sharing the fastest lap's identity are not counted as others.
func gain(stats []Stat, best int) float64 {
	others := make([]float64, 0, len(stats))
	for _, st := range stats {
		if st.Key != stats[best].Key {
			others = append(others, st.Time)
		}
	}
	if len(others) == 0 {
		return 0
	}
	return stat.Mean(others, nil) - stats[best].Time
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
