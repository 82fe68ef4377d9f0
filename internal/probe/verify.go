package probe

import (
	"fmt"
	"math"

	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/internal/domain/types"
)

const zeroTolerance = 1e-9

func undecodable(err error) (int, []string) {
	return 0, []string{fmt.Sprintf("decode: %v", err)}
}

// checkDominance requires a known winner and a non-negative gain on every record.
func checkDominance(body []byte, keys map[string]bool) (int, []string) {
	recs, err := decode[[]types.DominanceRecord](body)
	if err != nil {
		return undecodable(err)
	}
	var problems []string
	if len(recs) == 0 {
		problems = append(problems, "no records")
	}
	for i, r := range recs {
		if !keys[r.FastestDriver] {
			problems = append(problems, fmt.Sprintf("record %d: unexpected winner %q", i, r.FastestDriver))
		}
		if r.TimeGainSeconds < 0 || math.IsNaN(r.TimeGainSeconds) {
			problems = append(problems, fmt.Sprintf("record %d: gain %v", i, r.TimeGainSeconds))
		}
		if r.Minisector < 1 {
			problems = append(problems, fmt.Sprintf("record %d: minisector %d", i, r.Minisector))
		}
	}
	return len(recs), problems
}

// checkLabelLoss requires the fastest overall lap to lose nothing to itself.
func checkLabelLoss(body []byte, keys map[string]bool) (int, []string) {
	recs, err := decode[[]types.LabelLossRecord](body)
	if err != nil {
		return undecodable(err)
	}
	var problems []string
	for _, r := range recs {
		if !keys[r.DriverYear] {
			problems = append(problems, fmt.Sprintf("unexpected competitor %q", r.DriverYear))
		}
		fastest := telemetry.LapKey{Driver: r.FastestOverallDriver, Year: r.FastestOverallYear}.String()
		if r.DriverYear == fastest && math.Abs(r.MeanDiffToFastestSeconds) > zeroTolerance {
			problems = append(problems, fmt.Sprintf("fastest lap %s loses %v on %s",
				fastest, r.MeanDiffToFastestSeconds, r.MinisectorLabel))
		}
	}
	return len(recs), problems
}

// checkGap requires the reference to be excluded from its own curves and
// every curve to run forward along the reference lap.
func checkGap(body []byte, keys map[string]bool) (int, []string) {
	evo, err := decode[types.GapEvolution](body)
	if err != nil {
		return undecodable(err)
	}
	var problems []string
	if evo.Reference != "" && !keys[evo.Reference] {
		problems = append(problems, fmt.Sprintf("unexpected reference %q", evo.Reference))
	}
	if _, ok := evo.Curves[evo.Reference]; ok {
		problems = append(problems, fmt.Sprintf("reference %s has a curve against itself", evo.Reference))
	}
	for key, curve := range evo.Curves {
		if !keys[key] {
			problems = append(problems, fmt.Sprintf("unexpected competitor %q", key))
		}
		for i := 1; i < len(curve); i++ {
			if curve[i].X < curve[i-1].X {
				problems = append(problems, fmt.Sprintf("%s: curve not sorted at point %d", key, i))
				break
			}
		}
	}
	return len(evo.Curves), problems
}

// checkBraking requires every competitor to be sampled on the same grid.
func checkBraking(body []byte, keys map[string]bool) (int, []string) {
	series, err := decode[map[string][]types.BrakingPoint](body)
	if err != nil {
		return undecodable(err)
	}
	var problems []string
	size := -1
	for key, points := range series {
		if !keys[key] {
			problems = append(problems, fmt.Sprintf("unexpected competitor %q", key))
		}
		if size >= 0 && len(points) != size {
			problems = append(problems, fmt.Sprintf("%s: %d points, others have %d", key, len(points), size))
		}
		size = len(points)
	}
	return len(series), problems
}

// checkTelemetry requires distance to never decrease within a lap.
func checkTelemetry(body []byte, keys map[string]bool) (int, []string) {
	series, err := decode[map[string][]types.TelemetryPoint](body)
	if err != nil {
		return undecodable(err)
	}
	var problems []string
	for key, points := range series {
		if !keys[key] {
			problems = append(problems, fmt.Sprintf("unexpected competitor %q", key))
		}
		for i := 1; i < len(points); i++ {
			if points[i].Distance < points[i-1].Distance {
				problems = append(problems, fmt.Sprintf("%s: distance decreases at sample %d", key, i))
				break
			}
		}
	}
	return len(series), problems
}

func checkDistribution(body []byte, keys map[string]bool) (int, []string) {
	resp, err := decode[struct {
		Data []types.BrakingDistributionRecord `json:"data"`
	}](body)
	if err != nil {
		return undecodable(err)
	}
	var problems []string
	for _, r := range resp.Data {
		key := telemetry.LapKey{Driver: r.Driver, Year: r.Year}.String()
		if !keys[key] {
			problems = append(problems, fmt.Sprintf("unexpected competitor %q", key))
		}
		if r.BrakingDistance < 0 {
			problems = append(problems, fmt.Sprintf("%s lap %d: braking distance %v", key, r.Lap, r.BrakingDistance))
		}
	}
	return len(resp.Data), problems
}
