// Package csvlap reads and writes laps as CSV, one row per telemetry sample.
//
// Headers are matched case-insensitively and may appear in any order. Lap
// columns repeat on every sample row; rows are grouped into sessions by
// (year, event, session) and into laps by (driver, lap_number).
package csvlap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/okian/laptrace/internal/domain/telemetry"
)

// Columns is the header Write produces.
var Columns = []string{
	"year", "event", "session", "driver", "lap_number", "lap_time",
	"accurate", "deleted", "pit_in", "pit_out",
	"time", "distance", "x", "y", "speed", "rpm", "throttle", "brake", "gear", "drs",
}

var required = []string{"year", "event", "session", "driver", "lap_number", "distance", "x", "y", "speed"}

// Sentinel kinds for CSV errors.
var (
	ErrMissingColumn = errors.New("missing required csv column")
	ErrEmpty         = errors.New("csv has no rows")
	ErrNonFinite     = errors.New("non-finite number")
)

// Result summarises a Read.
type Result struct {
	Rows   int
	Failed int
	Errors []string
}

// Read parses every session in r. Rows that fail to parse are skipped and
// reported in Result; a missing header column fails the whole read.
func Read(r io.Reader) ([]*telemetry.Session, Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var res Result
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, res, ErrEmpty
	}
	if err != nil {
		return nil, res, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, res, fmt.Errorf("%s: %w", c, ErrMissingColumn)
		}
	}

	g := newGrouper()
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		res.Rows++
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		row, err := parseRow(record, cols)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		g.add(row)
	}
	if res.Rows == 0 {
		return nil, res, ErrEmpty
	}
	return g.sessions, res, nil
}

// Write emits laps under the Columns header.
func Write(w io.Writer, laps ...telemetry.Lap) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i := range laps {
		l := &laps[i]
		lapCols := []string{
			strconv.Itoa(l.Key.Year), l.Event, l.Session, l.Key.Driver,
			strconv.Itoa(l.LapNumber), ftoa(l.LapTime),
			strconv.FormatBool(l.Accurate), strconv.FormatBool(l.Deleted),
			strconv.FormatBool(l.PitIn), strconv.FormatBool(l.PitOut),
		}
		for _, s := range l.Samples {
			rec := append(append(make([]string, 0, len(Columns)), lapCols...),
				ftoa(s.Time), ftoa(s.Distance), ftoa(s.X), ftoa(s.Y), ftoa(s.Speed),
				ftoa(s.RPM), ftoa(s.Throttle), ftoa(s.Brake),
				strconv.Itoa(s.Gear), strconv.Itoa(s.DRS),
			)
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

type row struct {
	session telemetry.SessionKey
	lap     telemetry.Lap
	sample  telemetry.Sample
}

func parseRow(record []string, cols map[string]int) (row, error) {
	get := func(col string) string {
		if idx, ok := cols[col]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}
	p := parser{get: get}

	var r row
	r.session = telemetry.SessionKey{
		Year:       p.intCol("year", true),
		Event:      get("event"),
		Identifier: get("session"),
	}
	if r.session.Event == "" || r.session.Identifier == "" {
		return row{}, errors.New("event and session must not be empty")
	}
	driver := strings.ToUpper(get("driver"))
	if driver == "" {
		return row{}, errors.New("driver must not be empty")
	}
	r.lap = telemetry.Lap{
		Key:       telemetry.LapKey{Driver: driver, Year: r.session.Year},
		Event:     r.session.Event,
		Session:   r.session.Identifier,
		LapNumber: p.intCol("lap_number", true),
		LapTime:   p.floatCol("lap_time", false),
		Accurate:  p.boolCol("accurate", true),
		Deleted:   p.boolCol("deleted", false),
		PitIn:     p.boolCol("pit_in", false),
		PitOut:    p.boolCol("pit_out", false),
	}
	r.sample = telemetry.Sample{
		Time:     p.floatCol("time", false),
		Distance: p.floatCol("distance", true),
		X:        p.floatCol("x", true),
		Y:        p.floatCol("y", true),
		Speed:    p.floatCol("speed", true),
		RPM:      p.floatCol("rpm", false),
		Throttle: p.floatCol("throttle", false),
		Brake:    p.floatCol("brake", false),
		Gear:     p.intCol("gear", false),
		DRS:      p.intCol("drs", false),
	}
	if p.err != nil {
		return row{}, p.err
	}
	return r, nil
}

// parser keeps the first conversion error so a row is parsed in one pass.
type parser struct {
	get func(string) string
	err error
}

func (p *parser) value(col string, mandatory bool) (string, bool) {
	v := p.get(col)
	if v == "" {
		if mandatory && p.err == nil {
			p.err = fmt.Errorf("%s is empty", col)
		}
		return "", false
	}
	return v, true
}

func (p *parser) floatCol(col string, mandatory bool) float64 {
	v, ok := p.value(col, mandatory)
	if !ok {
		return 0
	}
	return p.parseFloat(col, v)
}

func (p *parser) intCol(col string, mandatory bool) int {
	v, ok := p.value(col, mandatory)
	if !ok {
		return 0
	}
	// Accept "3.0" as written by tools that store everything as floats.
	return int(p.parseFloat(col, v))
}

// parseFloat rejects NaN and infinities, which ParseFloat accepts.
func (p *parser) parseFloat(col, v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = fmt.Errorf("%q: %w", v, ErrNonFinite)
	}
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("%s: %w", col, err)
		}
		return 0
	}
	return f
}

func (p *parser) boolCol(col string, def bool) bool {
	v, ok := p.value(col, false)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y":
		return true
	case "0", "false", "f", "no", "n":
		return false
	}
	if p.err == nil {
		p.err = fmt.Errorf("%s: invalid boolean %q", col, v)
	}
	return def
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type lapID struct {
	driver string
	number int
}

// grouper assembles rows into sessions and laps in first-seen order.
type grouper struct {
	sessions []*telemetry.Session
	bySess   map[telemetry.SessionKey]int
	byLap    map[telemetry.SessionKey]map[lapID]int
}

func newGrouper() *grouper {
	return &grouper{
		bySess: make(map[telemetry.SessionKey]int),
		byLap:  make(map[telemetry.SessionKey]map[lapID]int),
	}
}

func (g *grouper) add(r row) {
	si, ok := g.bySess[r.session]
	if !ok {
		si = len(g.sessions)
		g.bySess[r.session] = si
		g.byLap[r.session] = make(map[lapID]int)
		g.sessions = append(g.sessions, &telemetry.Session{Key: r.session})
	}
	sess := g.sessions[si]

	id := lapID{driver: r.lap.Key.Driver, number: r.lap.LapNumber}
	li, ok := g.byLap[r.session][id]
	if !ok {
		li = len(sess.Laps)
		g.byLap[r.session][id] = li
		sess.Laps = append(sess.Laps, r.lap)
	}
	sess.Laps[li].Samples = append(sess.Laps[li].Samples, r.sample)
}
