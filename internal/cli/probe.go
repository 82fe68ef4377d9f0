package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/okian/laptrace/internal/probe"
)

func newProbeCmd(o *options) *cobra.Command {
	var (
		sel selection
		cfg probe.Config
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Exercise a running server concurrently and verify its answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Event = sel.event
			cfg.Session = sel.session
			cfg.Years = sel.years
			cfg.Drivers = sel.drivers
			cfg.Logger = o.log.Named("probe")

			report, err := probe.Run(cmd.Context(), cfg)
			w := cmd.OutOrStdout()
			if report.Requests > 0 {
				fmt.Fprintf(w, "requests %d  ok %d  backpressure %d  failed %d  in %s\n",
					report.Requests, report.Succeeded, report.Backpressure, report.Failed,
					report.Duration.Round(time.Millisecond))
				paths := lo.Keys(report.Records)
				slices.Sort(paths)
				for _, path := range paths {
					fmt.Fprintf(w, "  %-32s %d records\n", path, report.Records[path])
				}
				for _, v := range report.Violations {
					fmt.Fprintf(w, "  FAIL %s\n", v)
				}
			}
			return err
		},
	}
	sel.bind(cmd)
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVar(&cfg.Rounds, "rounds", probe.DefaultRounds, "requests per analysis route")
	f.IntVar(&cfg.Workers, "workers", 0, "concurrent requests (0 for CPU cores * 2)")
	f.DurationVar(&cfg.Timeout, "timeout", probe.DefaultTimeout, "HTTP request timeout")
	return cmd
}
