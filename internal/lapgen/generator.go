// Package lapgen generates synthetic lap telemetry and probes a running
// server with it.
package lapgen

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/okian/laptrace/internal/domain/telemetry"
)

// Defaults for generated sessions.
const (
	DefaultTrackLength    = 5000.0 // metres
	DefaultCorners        = 6
	DefaultSampleInterval = 0.25 // seconds
	DefaultLaps           = 3

	centerlinePoints = 4096
	shapeWobble      = 0.2 // radial modulation; below 1 the outline stays simple
	shapeLobes       = 3
	minSpeed         = 90.0  // km/h at the apex of a corner
	maxSpeed         = 310.0 // km/h at the end of a straight
	brakeDrop        = 0.75  // km/h lost per sample that counts as braking
)

// Driver describes a synthetic competitor.
type Driver struct {
	Code string
	// Pace scales the whole speed trace; 1 is the reference pace.
	Pace float64
	// Line offsets the racing line from the centreline in metres, positive to
	// the outside.
	Line float64
}

// Plan describes the sessions to generate.
type Plan struct {
	Event          string
	Session        string
	Years          []int
	Drivers        []Driver
	Laps           int
	TrackLength    float64
	Corners        int
	SampleInterval float64
	Seed           uint64
}

func (s *Plan) defaults() {
	if s.Laps < 1 {
		s.Laps = DefaultLaps
	}
	if s.TrackLength <= 0 {
		s.TrackLength = DefaultTrackLength
	}
	if s.Corners < 1 {
		s.Corners = DefaultCorners
	}
	if s.SampleInterval <= 0 {
		s.SampleInterval = DefaultSampleInterval
	}
}

// Validate rejects specs that cannot produce a session.
func (s Plan) Validate() error {
	switch {
	case s.Event == "" || s.Session == "":
		return fmt.Errorf("event and session are required")
	case len(s.Years) == 0:
		return fmt.Errorf("at least one year is required")
	case len(s.Drivers) == 0:
		return fmt.Errorf("at least one driver is required")
	}
	for _, d := range s.Drivers {
		if d.Code == "" || d.Pace <= 0 {
			return fmt.Errorf("driver %q: code and positive pace are required", d.Code)
		}
	}
	return nil
}

// Generate builds one session per year. Every driver gets an out lap, Laps
// timed laps and an in lap; lap times vary slightly with the seed so the
// fastest lap is not always the first.
func Generate(plan Plan) ([]*telemetry.Session, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	plan.defaults()

	track := newCircuit(plan.TrackLength)
	rng := rand.New(rand.NewPCG(plan.Seed, plan.Seed^0x9e3779b97f4a7c15))

	out := make([]*telemetry.Session, 0, len(plan.Years))
	for yi, year := range plan.Years {
		sess := &telemetry.Session{
			Key:     telemetry.SessionKey{Year: year, Event: plan.Event, Identifier: plan.Session},
			Corners: corners(plan),
		}
		// Cars get a little quicker every year.
		yearPace := 1 + 0.01*float64(yi)
		for _, d := range plan.Drivers {
			for n := 1; n <= plan.Laps+2; n++ {
				pace := d.Pace * yearPace * (1 + 0.004*(rng.Float64()-0.5))
				lap := drive(track, plan, d, pace)
				lap.Key = telemetry.LapKey{Driver: d.Code, Year: year}
				lap.Event, lap.Session = plan.Event, plan.Session
				lap.LapNumber = n
				lap.Accurate = true
				lap.PitOut = n == 1
				lap.PitIn = n == plan.Laps+2
				sess.Laps = append(sess.Laps, lap)
			}
		}
		out = append(out, sess)
	}
	return out, nil
}

// speedAt is the reference speed trace: one slow corner every L/corners metres.
func speedAt(plan Plan, s float64) float64 {
	phase := 2 * math.Pi * float64(plan.Corners) * s / plan.TrackLength
	return minSpeed + (maxSpeed-minSpeed)*(0.5+0.5*math.Cos(phase))
}

func corners(plan Plan) []telemetry.Corner {
	out := make([]telemetry.Corner, plan.Corners)
	for j := range out {
		out[j] = telemetry.Corner{
			Distance: plan.TrackLength * (float64(j) + 0.5) / float64(plan.Corners),
			Label:    strconv.Itoa(j + 1),
		}
	}
	return out
}

// drive integrates one lap at a fixed sample interval. The last sample is the
// first one past the line, as recorded telemetry usually runs on slightly.
func drive(c *circuit, plan Plan, d Driver, pace float64) telemetry.Lap {
	var (
		lap  telemetry.Lap
		t, s float64
		prev = speedAt(plan, 0) * pace
	)
	for {
		v := speedAt(plan, s) * pace
		x, y := c.at(s, d.Line)
		smp := telemetry.Sample{
			Time:     t,
			Distance: s,
			X:        x,
			Y:        y,
			Speed:    v,
			RPM:      rpm(v),
			Gear:     gear(v),
			Throttle: 100,
		}
		if prev-v > brakeDrop {
			smp.Brake, smp.Throttle = 1, 0
		}
		lap.Samples = append(lap.Samples, smp)
		if s >= plan.TrackLength {
			break
		}
		step := v / 3.6 * plan.SampleInterval
		if s+step >= plan.TrackLength {
			lap.LapTime = t + (plan.TrackLength-s)/(v/3.6)
		}
		prev = v
		t += plan.SampleInterval
		s += step
	}
	return lap
}

func gear(v float64) int {
	return int(math.Min(8, 1+math.Floor(v/40)))
}

func rpm(v float64) float64 {
	return 4000 + 8000*math.Mod(v, 40)/40
}

// circuit is a closed, simple outline parameterised by arc length.
type circuit struct {
	xs, ys, dist []float64
}

func newCircuit(length float64) *circuit {
	c := &circuit{
		xs:   make([]float64, centerlinePoints+1),
		ys:   make([]float64, centerlinePoints+1),
		dist: make([]float64, centerlinePoints+1),
	}
	for i := 0; i <= centerlinePoints; i++ {
		th := 2 * math.Pi * float64(i) / centerlinePoints
		r := 1 + shapeWobble*math.Sin(shapeLobes*th)
		c.xs[i], c.ys[i] = r*math.Cos(th), r*math.Sin(th)
		if i > 0 {
			c.dist[i] = c.dist[i-1] + math.Hypot(c.xs[i]-c.xs[i-1], c.ys[i]-c.ys[i-1])
		}
	}
	scale := length / c.dist[centerlinePoints]
	for i := range c.xs {
		c.xs[i] *= scale
		c.ys[i] *= scale
		c.dist[i] *= scale
	}
	return c
}

// at returns the position at arc length s, offset along the outward normal.
func (c *circuit) at(s, offset float64) (float64, float64) {
	if total := c.dist[len(c.dist)-1]; s > total {
		s = math.Mod(s, total)
	}
	i := 1
	for i < len(c.dist)-1 && c.dist[i] < s {
		i++
	}
	seg := c.dist[i] - c.dist[i-1]
	f := 0.0
	if seg > 0 {
		f = (s - c.dist[i-1]) / seg
	}
	dx, dy := c.xs[i]-c.xs[i-1], c.ys[i]-c.ys[i-1]
	x := c.xs[i-1] + f*dx
	y := c.ys[i-1] + f*dy
	if n := math.Hypot(dx, dy); n > 0 && offset != 0 {
		// Counter-clockwise travel: the outward normal is (dy, -dx).
		x += offset * dy / n
		y -= offset * dx / n
	}
	return x, y
}
