package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/laptrace/internal/adapters/provider/csvlap"
	"github.com/okian/laptrace/internal/domain/telemetry"
)

func newExportCmd(o *options) *cobra.Command {
	var (
		key    telemetry.SessionKey
		driver string
		lap    int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a stored lap to CSV",
		Long: `Export writes one lap of a stored session as CSV. Without --lap it writes the
competitor's fastest timed lap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := o.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sess, err := store.Fetch(ctx, key)
			if err != nil {
				return err
			}
			selected, err := pickLap(sess, driver, lap)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			return csvlap.Write(w, *selected)
		},
	}

	f := cmd.Flags()
	f.StringVar(&key.Event, "event", "", "event name")
	f.StringVar(&key.Identifier, "session", "Q", "session identifier")
	f.IntVar(&key.Year, "year", 0, "season year")
	f.StringVar(&driver, "driver", "", "driver code")
	f.IntVar(&lap, "lap", 0, "lap number (0 for the fastest timed lap)")
	f.StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("driver")
	return cmd
}

// pickLap returns lap number n of driver, or the fastest timed lap when n is 0.
func pickLap(sess *telemetry.Session, driver string, n int) (*telemetry.Lap, error) {
	driver = strings.ToUpper(strings.TrimSpace(driver))
	if n == 0 {
		return sess.FastestLap(driver)
	}
	for _, l := range sess.DriverLaps(driver) {
		if l.LapNumber == n {
			return &l, nil
		}
	}
	return nil, fmt.Errorf("%s lap %d in %s: %w", driver, n, sess.Key, telemetry.ErrLapNotFound)
}
