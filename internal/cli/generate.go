package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/laptrace/internal/lapgen"
	"github.com/okian/laptrace/pkg/logger"
)

func newGenerateCmd(o *options) *cobra.Command {
	var (
		plan    lapgen.Plan
		drivers []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic sessions into the telemetry store",
		Example: `  lapctl generate --event "Synthetic Grand Prix" --years 2023,2024 \
    --drivers AAA,BBB:0.98,CCC:0.97:1.5 --laps 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			plan.Drivers = plan.Drivers[:0]
			for _, raw := range drivers {
				d, err := parseDriver(raw)
				if err != nil {
					return err
				}
				plan.Drivers = append(plan.Drivers, d)
			}
			sessions, err := lapgen.Generate(plan)
			if err != nil {
				return err
			}

			store, err := o.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for _, s := range sessions {
				if err := store.SaveSession(ctx, s); err != nil {
					return err
				}
				o.log.Info(ctx, "session generated",
					logger.String("session", s.Key.String()),
					logger.Int("laps", len(s.Laps)))
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d laps\n", s.Key, len(s.Laps))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&plan.Event, "event", "Synthetic Grand Prix", "event name")
	f.StringVar(&plan.Session, "session", "Q", "session identifier")
	f.IntSliceVar(&plan.Years, "years", []int{2024}, "years to generate")
	f.StringSliceVar(&drivers, "drivers", []string{"AAA", "BBB:0.98"}, "drivers as CODE[:PACE[:LINE]]")
	f.IntVar(&plan.Laps, "laps", 3, "timed laps per driver, plus an out and an in lap")
	f.Float64Var(&plan.TrackLength, "length", 0, "track length in metres (0 for the default)")
	f.IntVar(&plan.Corners, "corners", 0, "corner count (0 for the default)")
	f.Float64Var(&plan.SampleInterval, "interval", 0, "sample interval in seconds (0 for the default)")
	f.Uint64Var(&plan.Seed, "seed", 1, "random seed")
	return cmd
}
