package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/laptrace/internal/adapters/provider/csvlap"
	"github.com/okian/laptrace/pkg/logger"
)

func newImportCmd(o *options) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "import <csv>...",
		Short: "Import CSV lap telemetry into the telemetry store",
		Long: `Import reads CSV files with one telemetry sample per row and stores every
session they contain, replacing sessions already stored under the same key.
Rows that fail to parse are skipped and reported unless --strict is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := o.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				sessions, res, err := csvlap.Read(f)
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				for _, msg := range res.Errors {
					o.log.Warn(ctx, "row skipped", logger.String("file", path), logger.String("reason", msg))
				}
				if strict && res.Failed > 0 {
					return fmt.Errorf("%s: %d of %d rows failed: %w", path, res.Failed, res.Rows, ErrUsage)
				}
				for _, s := range sessions {
					if err := store.SaveSession(ctx, s); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d laps\n", path, s.Key, len(s.Laps))
				}
				o.log.Info(ctx, "csv imported",
					logger.String("file", path),
					logger.Int("rows", res.Rows),
					logger.Int("failed", res.Failed),
					logger.Int("sessions", len(sessions)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any row cannot be parsed")
	return cmd
}
