package segment

// Segment labels classify a minisector by the slowest speed reached in it.
const (
	LabelSlow     = "Slow"
	LabelMedium   = "Medium"
	LabelFast     = "Fast"
	LabelStraight = "Straight"
)

// Thresholds are the km/h cut-offs between label classes.
type Thresholds struct {
	SlowBelow   float64
	MediumBelow float64
	FastBelow   float64
}

// DefaultThresholds classifies minimum speeds as
// Slow < 100 <= Medium < 160 <= Fast < 220 <= Straight.
var DefaultThresholds = Thresholds{SlowBelow: 100, MediumBelow: 160, FastBelow: 220}

// Label classifies a minimum segment speed.
func (t Thresholds) Label(minSpeed float64) string {
	switch {
	case minSpeed < t.SlowBelow:
		return LabelSlow
	case minSpeed < t.MediumBelow:
		return LabelMedium
	case minSpeed < t.FastBelow:
		return LabelFast
	default:
		return LabelStraight
	}
}

var labelRank = map[string]int{
	LabelSlow:     0,
	LabelMedium:   1,
	LabelFast:     2,
	LabelStraight: 3,
}

// labelLess orders the canonical classes first, then any other label alphabetically.
func labelLess(a, b string) bool {
	ra, okA := labelRank[a]
	rb, okB := labelRank[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}
