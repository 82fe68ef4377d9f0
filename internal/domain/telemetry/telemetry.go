// Package telemetry contains the lap telemetry models passed between layers.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Sample is one telemetry reading along a lap.
type Sample struct {
	Time     float64 // elapsed lap time in seconds
	Distance float64 // metres since the start line
	X        float64
	Y        float64
	Speed    float64 // km/h
	RPM      float64
	Throttle float64 // 0-100
	Brake    float64 // 0/1 or 0-1 pressure
	Gear     int
	DRS      int
}

// Finite reports whether the positional channels and speed are usable numbers.
func (s Sample) Finite() bool {
	for _, v := range [...]float64{s.Time, s.Distance, s.X, s.Y, s.Speed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LapKey identifies a competitor's lap within a multi-year comparison.
type LapKey struct {
	Driver string
	Year   int
}

// String renders the competitor identity used as output key, e.g. "VER_2023".
func (k LapKey) String() string {
	return k.Driver + "_" + strconv.Itoa(k.Year)
}

// ParseLapKey parses the "<DRIVER>_<YEAR>" form produced by LapKey.String.
func ParseLapKey(s string) (LapKey, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 || i == len(s)-1 {
		return LapKey{}, fmt.Errorf("parse lap key %q: %w", s, ErrInvalidKey)
	}
	year, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return LapKey{}, fmt.Errorf("parse lap key %q: %w", s, ErrInvalidKey)
	}
	return LapKey{Driver: s[:i], Year: year}, nil
}

// SessionKey identifies one session of an event, e.g. (2023, "Italian Grand Prix", "Q").
type SessionKey struct {
	Year       int
	Event      string
	Identifier string
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Year, k.Event, k.Identifier)
}

// Corner is a track corner marker supplied with the session.
type Corner struct {
	Distance float64 `json:"distance"`
	Label    string  `json:"label"`
}

// Lap is one timed lap of a competitor.
type Lap struct {
	Key       LapKey
	Event     string
	Session   string
	LapNumber int
	LapTime   float64 // seconds; 0 means no recorded time
	Accurate  bool
	Deleted   bool
	PitIn     bool
	PitOut    bool
	Samples   []Sample
}

// Timed reports whether the lap has a recorded lap time.
func (l *Lap) Timed() bool {
	return l.LapTime > 0 && !math.IsInf(l.LapTime, 1)
}

// DropNonFinite replaces the samples with a fresh slice holding only finite
// ones, leaving any shared backing array untouched. It returns how many were
// dropped.
func (l *Lap) DropNonFinite() int {
	kept := lo.Filter(l.Samples, func(s Sample, _ int) bool { return s.Finite() })
	dropped := len(l.Samples) - len(kept)
	if dropped > 0 {
		l.Samples = kept
	}
	return dropped
}

// Clean reports whether the lap is representative: timed, accurate, not deleted
// and not an in or out lap.
func (l *Lap) Clean() bool {
	return l.Timed() && l.Accurate && !l.Deleted && !l.PitIn && !l.PitOut
}

// MaxDistance returns the largest distance recorded on the lap.
func (l *Lap) MaxDistance() float64 {
	usable := lo.Filter(l.Samples, func(s Sample, _ int) bool {
		return !math.IsNaN(s.Distance) && !math.IsInf(s.Distance, 0)
	})
	if len(usable) == 0 {
		return 0
	}
	return lo.MaxBy(usable, func(a, b Sample) bool { return a.Distance > b.Distance }).Distance
}

// Validate rejects laps that cannot be analysed at all.
func (l *Lap) Validate() error {
	if !l.Timed() {
		return fmt.Errorf("lap %s #%d: %w", l.Key, l.LapNumber, ErrLapNotFound)
	}
	if len(l.Samples) < MinSamples || l.MaxDistance() <= 0 {
		return fmt.Errorf("lap %s #%d has %d samples: %w", l.Key, l.LapNumber, len(l.Samples), ErrDegenerateLap)
	}
	return nil
}

// MinSamples is the smallest sample count a lap needs for segmentation or matching.
const MinSamples = 2

// Session holds every lap of every competitor for one session.
type Session struct {
	Key     SessionKey
	Laps    []Lap
	Corners []Corner
}

// DriverLaps returns the laps of one competitor in recorded order.
func (s *Session) DriverLaps(driver string) []Lap {
	return lo.Filter(s.Laps, func(l Lap, _ int) bool {
		return strings.EqualFold(l.Key.Driver, driver)
	})
}

// FastestLap picks the competitor's quickest timed, non-deleted lap.
// Returns ErrLapNotFound if the competitor has none.
func (s *Session) FastestLap(driver string) (*Lap, error) {
	laps := lo.Filter(s.DriverLaps(driver), func(l Lap, _ int) bool {
		return l.Timed() && !l.Deleted
	})
	if len(laps) == 0 {
		return nil, fmt.Errorf("%s in %s: %w", driver, s.Key, ErrLapNotFound)
	}
	best := lo.MinBy(laps, func(a, b Lap) bool { return a.LapTime < b.LapTime })
	return &best, nil
}

// FastestOverall reduces a lap collection to the one with the lowest lap time.
// Ties keep the first lap in input order. Untimed laps never win.
func FastestOverall(laps []*Lap) (*Lap, error) {
	timed := lo.Filter(laps, func(l *Lap, _ int) bool { return l != nil && l.Timed() })
	if len(timed) == 0 {
		return nil, ErrNoValidLaps
	}
	return lo.MinBy(timed, func(a, b *Lap) bool { return a.LapTime < b.LapTime }), nil
}

// SessionProvider resolves sessions from an upstream telemetry source.
type SessionProvider interface {
	// Fetch returns the session or ErrSessionUnavailable when the source
	// cannot supply it.
	Fetch(ctx context.Context, key SessionKey) (*Session, error)
}

// SessionProviderFunc adapts a function to SessionProvider.
type SessionProviderFunc func(ctx context.Context, key SessionKey) (*Session, error)

// Fetch implements SessionProvider.
func (f SessionProviderFunc) Fetch(ctx context.Context, key SessionKey) (*Session, error) {
	return f(ctx, key)
}
