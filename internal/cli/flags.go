package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/laptrace/internal/lapgen"
)

// selection is the session and competitors a command works on.
type selection struct {
	event   string
	session string
	years   []int
	drivers []string
}

func (s *selection) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.event, "event", "", "event name, e.g. \"Italian Grand Prix\"")
	f.StringVar(&s.session, "session", "Q", "session identifier")
	f.IntSliceVar(&s.years, "years", nil, "years to include (repeatable or comma separated)")
	f.StringSliceVar(&s.drivers, "drivers", nil, "driver codes (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("years")
	_ = cmd.MarkFlagRequired("drivers")
}

// parseDriver reads CODE[:PACE[:LINE]].
func parseDriver(raw string) (lapgen.Driver, error) {
	parts := strings.Split(raw, ":")
	if len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return lapgen.Driver{}, fmt.Errorf("driver %q: want CODE[:PACE[:LINE]]: %w", raw, ErrUsage)
	}
	d := lapgen.Driver{Code: strings.ToUpper(strings.TrimSpace(parts[0])), Pace: 1}
	if len(parts) > 1 {
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || v <= 0 {
			return lapgen.Driver{}, fmt.Errorf("driver %q: bad pace: %w", raw, ErrUsage)
		}
		d.Pace = v
	}
	if len(parts) > 2 {
		v, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return lapgen.Driver{}, fmt.Errorf("driver %q: bad line offset: %w", raw, ErrUsage)
		}
		d.Line = v
	}
	return d, nil
}
