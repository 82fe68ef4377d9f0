// Package cli implements the lapctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/laptrace/internal/adapters/provider/sqlitestore"
	"github.com/okian/laptrace/internal/config"
	"github.com/okian/laptrace/pkg/logger"
)

// ErrUsage marks invalid command line input.
var ErrUsage = errors.New("usage error")

// options carries the persistent flags shared by every command.
type options struct {
	configFile string
	dbPath     string
	verbose    bool
	stderr     io.Writer

	cfg *config.Config
	log logger.Logger
}

// NewRootCmd builds the lapctl command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "lapctl",
		Short:         "Lap telemetry tooling for laptrace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			o.stderr = cmd.ErrOrStderr()
			return o.load(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&o.configFile, "config", "",
		"YAML config file (default: $LAPTRACE_CONFIG)")
	root.PersistentFlags().StringVar(&o.dbPath, "db", "",
		"SQLite telemetry store (overrides database_path)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false,
		"log at debug level")

	root.AddCommand(
		newGenerateCmd(o),
		newImportCmd(o),
		newExportCmd(o),
		newAnalyzeCmd(o),
		newProbeCmd(o),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (o *options) load(ctx context.Context) error {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(ctx, o.configFile)
	} else {
		cfg, err = config.Load(ctx)
	}
	if err != nil {
		return err
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	o.cfg = cfg

	// stdout carries command output; logs go to stderr.
	if err := logger.InitTo(o.stderr); err != nil {
		return err
	}
	level := cfg.LogLevel
	if o.verbose {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		_ = logger.SetLevelString("info")
	}
	o.log = logger.Named("lapctl")
	return nil
}

func (o *options) openStore(ctx context.Context) (*sqlitestore.Store, error) {
	return sqlitestore.Open(ctx, o.cfg.DatabasePath, sqlitestore.WithLogger(o.log.Named("sqlite")))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
