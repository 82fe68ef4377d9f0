package segment

import (
	"sort"

	"github.com/okian/laptrace/internal/domain/telemetry"
	"gonum.org/v1/gonum/stat"
)

// Loss is a lap's mean per-segment time loss to the reference lap across all
// segments sharing a label.
type Loss struct {
	Key      telemetry.LapKey
	Label    string
	MeanDiff float64 // seconds; positive means slower than the reference
	Segments int
}

// LabelLoss compares every lap in order against ref, grouped by segment label.
// Only segments where both laps have samples contribute. Labels appear in the
// order Slow, Medium, Fast, Straight, then any other label alphabetically.
func LabelLoss(t Table, ref telemetry.LapKey, order []telemetry.LapKey) []Loss {
	diffs := make(map[telemetry.LapKey]map[string][]float64, len(order))
	labels := make(map[string]struct{})
	for _, sum := range t.summaries {
		refStat, ok := sum.Stat(ref)
		if !ok {
			continue
		}
		for _, key := range order {
			st, ok := sum.Stat(key)
			if !ok {
				continue
			}
			if diffs[key] == nil {
				diffs[key] = make(map[string][]float64)
			}
			diffs[key][sum.Label] = append(diffs[key][sum.Label], st.Time-refStat.Time)
			labels[sum.Label] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(labels))
	for l := range labels {
		sorted = append(sorted, l)
	}
	sort.Slice(sorted, func(i, j int) bool { return labelLess(sorted[i], sorted[j]) })

	var out []Loss
	seen := make(map[telemetry.LapKey]struct{}, len(order))
	for _, key := range order {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		for _, label := range sorted {
			xs := diffs[key][label]
			if len(xs) == 0 {
				continue
			}
			out = append(out, Loss{Key: key, Label: label, MeanDiff: stat.Mean(xs, nil), Segments: len(xs)})
		}
	}
	return out
}
