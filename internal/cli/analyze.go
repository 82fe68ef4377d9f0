package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/okian/laptrace/internal/adapters/repository"
	service "github.com/okian/laptrace/internal/app"
	"github.com/okian/laptrace/internal/domain/segment"
)

func newAnalyzeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an analysis against the telemetry store and print JSON",
	}
	cmd.AddCommand(
		newAnalysisCmd(o, "dominance", "Minisector dominance along the fastest lap",
			func(ctx context.Context, svc *service.Service, req service.AnalysisRequest) (any, error) {
				return svc.TrackDominance(ctx, req)
			}),
		newAnalysisCmd(o, "gap", "Gap evolution of every competitor to the fastest lap",
			func(ctx context.Context, svc *service.Service, req service.AnalysisRequest) (any, error) {
				return svc.GapEvolution(ctx, req)
			}),
		newAnalysisCmd(o, "labels", "Mean time lost per minisector label",
			func(ctx context.Context, svc *service.Service, req service.AnalysisRequest) (any, error) {
				return svc.SegmentLabelLoss(ctx, req)
			}),
	)
	return cmd
}

type analysisFunc func(ctx context.Context, svc *service.Service, req service.AnalysisRequest) (any, error)

func newAnalysisCmd(o *options, name, short string, run analysisFunc) *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeAll, err := o.localService(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			out, err := run(ctx, svc, service.AnalysisRequest{
				Event:   sel.event,
				Session: sel.session,
				Years:   sel.years,
				Drivers: sel.drivers,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	sel.bind(cmd)
	return cmd
}

// localService starts an analysis service over the configured store and
// track catalog. The returned func stops the service and closes the store.
func (o *options) localService(ctx context.Context) (*service.Service, func(), error) {
	store, err := o.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	tracks, err := repository.NewCatalog(ctx,
		repository.WithOverrideFile(o.cfg.TracksFile),
		repository.WithLogger(o.log.Named("tracks")),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cfg := o.cfg
	svc := service.New(store,
		service.WithTrackStore(tracks),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithMinisectorCount(cfg.MinisectorCount),
		service.WithMatchTargetSamples(cfg.MatchTargetSamples),
		service.WithMatchDistanceThreshold(cfg.MatchDistanceThreshold),
		service.WithGapSmoothingWindow(cfg.GapSmoothingWindow),
		service.WithBrakeDecelThreshold(cfg.BrakeDecelThreshold),
		service.WithLabelThresholds(segment.Thresholds{
			SlowBelow:   cfg.LabelSlowBelow,
			MediumBelow: cfg.LabelMediumBelow,
			FastBelow:   cfg.LabelFastBelow,
		}),
		service.WithLogger(o.log.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, func() {
		svc.Stop()
		_ = store.Close()
	}, nil
}
