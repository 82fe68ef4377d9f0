// Package types contains the analysis result records returned across the application
package types

import "github.com/okian/laptrace/internal/domain/telemetry"

// DominanceRecord is one reference-lap sample tagged with its minisector winner
type DominanceRecord struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Distance        float64 `json:"distance"`
	Minisector      int     `json:"minisector"`
	FastestDriver   string  `json:"fastest_driver"`
	Driver          string  `json:"driver"`
	Year            int     `json:"year"`
	TimeGainSeconds float64 `json:"time_diff"`
	Label           string  `json:"label"`
}

// LabelLossRecord is a competitor's mean time loss to the fastest overall lap
// across the minisectors of one label. Field names follow the dashboard's
// average-difference chart, as DominanceRecord's follow its track map
type LabelLossRecord struct {
	DriverYear               string  `json:"DriverYear"`
	MinisectorLabel          string  `json:"MinisectorLabel"`
	MeanDiffToFastestSeconds float64 `json:"Diff_to_Fastest_sec"`
	Segments                 int     `json:"Segments"`
	FastestOverallDriver     string  `json:"FastestOverallDriver"`
	FastestOverallYear       int     `json:"FastestOverallYear"`
}

// GapPoint is a smoothed time gap at a reference distance
type GapPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GapEvolution holds every competitor's gap curve against the reference lap
type GapEvolution struct {
	Reference string                `json:"reference"`
	Curves    map[string][]GapPoint `json:"curves"`
	Corners   []telemetry.Corner    `json:"corners"`
}

// BrakingPoint compares a competitor's brake with the ideal trace at a reference distance
type BrakingPoint struct {
	Distance       float64 `json:"distance"`
	ReferenceBrake float64 `json:"ideal_brake"`
	DriverBrake    float64 `json:"driver_brake"`
}

// TelemetryPoint is one raw sample of a competitor's fastest lap
type TelemetryPoint struct {
	Time     float64 `json:"time"`
	Distance float64 `json:"distance"`
	Speed    float64 `json:"speed"`
	RPM      float64 `json:"rpm"`
	Gear     int     `json:"gear"`
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	DRS      int     `json:"drs"`
}

// GearPoint is a track position and the gear engaged there
type GearPoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Gear int     `json:"gear"`
}

// BrakingDistributionRecord is the distance spent braking on one clean lap
type BrakingDistributionRecord struct {
	Driver          string  `json:"driver"`
	Year            int     `json:"year"`
	Lap             int     `json:"lap"`
	BrakingDistance float64 `json:"braking_distance"`
}

// NewTelemetryPoint converts a sample into its output record
func NewTelemetryPoint(s telemetry.Sample) TelemetryPoint {
	return TelemetryPoint{
		Time:     s.Time,
		Distance: s.Distance,
		Speed:    s.Speed,
		RPM:      s.RPM,
		Gear:     s.Gear,
		Throttle: s.Throttle,
		Brake:    s.Brake,
		DRS:      s.DRS,
	}
}
