package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/okian/laptrace/internal/adapters/repository"
	"github.com/okian/laptrace/internal/domain/braking"
	"github.com/okian/laptrace/internal/domain/gap"
	"github.com/okian/laptrace/internal/domain/segment"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/internal/domain/types"
	"github.com/okian/laptrace/pkg/logger"
	"github.com/okian/laptrace/pkg/metrics"
)

// Analysis kinds as recorded in metrics.
const (
	kindDominance    = "dominance"
	kindLabelLoss    = "label_loss"
	kindGap          = "gap"
	kindBraking      = "braking"
	kindTelemetry    = "telemetry"
	kindGear         = "gear"
	kindDistribution = "braking_distribution"
)

// observe records an analysis outcome. Call it deferred with a pointer to the
// named error result.
func observe(kind string, start time.Time, err *error) {
	outcome := "ok"
	switch {
	case *err == nil:
	case errors.Is(*err, telemetry.ErrNoValidLaps):
		outcome = "empty"
	default:
		outcome = "error"
	}
	metrics.RecordAnalysis(kind, outcome, float64(time.Since(start).Milliseconds()))
}

// TrackDominance tags every sample of the fastest lap with the minisector it
// falls in, that minisector's fastest competitor and their gain over the rest.
func (s *Service) TrackDominance(ctx context.Context, req AnalysisRequest) (out []types.DominanceRecord, err error) {
	defer observe(kindDominance, time.Now(), &err)

	req, laps, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	table, err := s.aggregate(ctx, req.Event, laps)
	if err != nil {
		return nil, err
	}
	ref, err := referenceLap(laps)
	if err != nil {
		return nil, err
	}

	out = make([]types.DominanceRecord, 0, len(ref.Samples))
	for _, smp := range ref.Samples {
		sum, ok := table.Lookup(smp.Distance)
		if !ok {
			continue
		}
		out = append(out, types.DominanceRecord{
			X:               smp.X,
			Y:               smp.Y,
			Distance:        smp.Distance,
			Minisector:      sum.Index,
			FastestDriver:   sum.Fastest.String(),
			Driver:          sum.Fastest.Driver,
			Year:            sum.Fastest.Year,
			TimeGainSeconds: sum.Gain,
			Label:           sum.Label,
		})
	}
	return out, nil
}

// SegmentLabelLoss reports, for every competitor and minisector label, the mean
// time lost per minisector to the fastest lap overall.
func (s *Service) SegmentLabelLoss(ctx context.Context, req AnalysisRequest) (out []types.LabelLossRecord, err error) {
	defer observe(kindLabelLoss, time.Now(), &err)

	req, laps, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	table, err := s.aggregate(ctx, req.Event, laps)
	if err != nil {
		return nil, err
	}
	fastest, err := telemetry.FastestOverall(laps)
	if err != nil {
		return nil, err
	}

	keys := lo.Map(laps, func(l *telemetry.Lap, _ int) telemetry.LapKey { return l.Key })
	losses := segment.LabelLoss(table, fastest.Key, keys)
	out = make([]types.LabelLossRecord, 0, len(losses))
	for _, l := range losses {
		out = append(out, types.LabelLossRecord{
			DriverYear:               l.Key.String(),
			MinisectorLabel:          l.Label,
			MeanDiffToFastestSeconds: l.MeanDiff,
			Segments:                 l.Segments,
			FastestOverallDriver:     fastest.Key.Driver,
			FastestOverallYear:       fastest.Key.Year,
		})
	}
	return out, nil
}

// GapEvolution builds every competitor's smoothed time gap to the fastest lap
// along the reference distance. The reference never appears among the curves.
func (s *Service) GapEvolution(ctx context.Context, req AnalysisRequest) (out types.GapEvolution, err error) {
	defer observe(kindGap, time.Now(), &err)

	_, laps, corners, err := s.prepareWithCorners(ctx, req)
	if err != nil {
		return types.GapEvolution{}, err
	}

	// The reference must have usable geometry; fall back to the next fastest lap.
	var res gap.Result
	for _, ref := range byLapTime(laps) {
		res, err = gap.Evolution(ref, laps,
			gap.WithMatcher(s.matcher()),
			gap.WithWindow(s.gapWindow),
		)
		if err == nil {
			break
		}
		if !errors.Is(err, telemetry.ErrDegenerateLap) {
			return types.GapEvolution{}, err
		}
		s.logger.Info(ctx, "gap reference rejected",
			logger.String("lap", ref.Key.String()),
			logger.Error(err),
		)
	}
	if err != nil {
		return types.GapEvolution{}, fmt.Errorf("no lap usable as gap reference: %w", telemetry.ErrNoValidLaps)
	}

	out = types.GapEvolution{
		Reference: res.Reference.String(),
		Curves:    make(map[string][]types.GapPoint, len(res.Curves)),
		Corners:   corners[res.Reference.Year],
	}
	if out.Corners == nil {
		out.Corners = []telemetry.Corner{}
	}
	for _, c := range res.Curves {
		points := make([]types.GapPoint, len(c.Points))
		for i, p := range c.Points {
			points[i] = types.GapPoint{X: p.RefDistance, Y: p.Gap}
		}
		out.Curves[c.Key.String()] = points
		metrics.RecordMatches(c.Matches, c.Swaps)
	}
	for _, sk := range res.Skipped {
		metrics.RecordLapSkipped(skipReason(sk.Err))
		s.logger.Info(ctx, "gap curve skipped",
			logger.String("lap", sk.Key.String()),
			logger.Error(sk.Err),
		)
	}
	return out, nil
}

// BrakingComparison projects every competitor's brake channel onto the fastest
// lap's distance grid next to the fastest lap's ideal braking trace.
func (s *Service) BrakingComparison(ctx context.Context, req AnalysisRequest) (out map[string][]types.BrakingPoint, err error) {
	defer observe(kindBraking, time.Now(), &err)

	_, laps, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	ref, err := referenceLap(laps)
	if err != nil {
		return nil, err
	}

	out = make(map[string][]types.BrakingPoint, len(laps))
	for _, l := range laps {
		points, err := braking.Compare(ref.Samples, l.Samples, s.brakeThreshold)
		if err != nil {
			return nil, fmt.Errorf("braking %s: %w", l.Key, err)
		}
		rows := make([]types.BrakingPoint, len(points))
		for i, p := range points {
			rows[i] = types.BrakingPoint{Distance: p.Distance, ReferenceBrake: p.Reference, DriverBrake: p.Competitor}
		}
		out[l.Key.String()] = rows
	}
	return out, nil
}

// Telemetry returns the raw samples of every competitor's fastest lap.
func (s *Service) Telemetry(ctx context.Context, req AnalysisRequest) (out map[string][]types.TelemetryPoint, err error) {
	defer observe(kindTelemetry, time.Now(), &err)

	_, laps, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	out = make(map[string][]types.TelemetryPoint, len(laps))
	for _, l := range laps {
		out[l.Key.String()] = lo.Map(l.Samples, func(smp telemetry.Sample, _ int) types.TelemetryPoint {
			return types.NewTelemetryPoint(smp)
		})
	}
	return out, nil
}

// GearMap returns the gear engaged along one competitor's fastest lap. A
// missing lap is an error here since there is no field to fall back on.
func (s *Service) GearMap(ctx context.Context, year int, event, session, driver string) (out []types.GearPoint, err error) {
	defer observe(kindGear, time.Now(), &err)

	req, err := AnalysisRequest{Event: event, Session: session, Years: []int{year}, Drivers: []string{driver}}.normalize()
	if err != nil {
		return nil, err
	}
	lap, err := s.loadOne(ctx, req)
	if err != nil {
		return nil, err
	}
	return lo.Map(lap.Samples, func(smp telemetry.Sample, _ int) types.GearPoint {
		return types.GearPoint{X: smp.X, Y: smp.Y, Gear: smp.Gear}
	}), nil
}

// BrakingDistribution reports the distance spent braking on every accurate,
// not deleted, non-pit lap of the requested competitors. Sessions the
// provider cannot supply are skipped.
func (s *Service) BrakingDistribution(ctx context.Context, req AnalysisRequest) (out []types.BrakingDistributionRecord, err error) {
	defer observe(kindDistribution, time.Now(), &err)

	if req, err = req.normalize(); err != nil {
		return nil, err
	}

	perYear := make([][]types.BrakingDistributionRecord, len(req.Years))
	g, gctx := errgroup.WithContext(ctx)
	for i, year := range req.Years {
		g.Go(func() error {
			sess, err := s.provider.Fetch(gctx, req.sessionKey(year))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				metrics.RecordLapSkipped(skipReason(err))
				s.logger.Info(gctx, "session skipped", logger.Int("year", year), logger.Error(err))
				return nil
			}
			for _, driver := range req.Drivers {
				for _, l := range sess.DriverLaps(driver) {
					if !l.Accurate || l.Deleted || l.PitIn || l.PitOut {
						continue
					}
					perYear[i] = append(perYear[i], types.BrakingDistributionRecord{
						Driver:          driver,
						Year:            year,
						Lap:             l.LapNumber,
						BrakingDistance: braking.Distance(l.Samples),
					})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out = lo.Flatten(perYear)
	if out == nil {
		out = []types.BrakingDistributionRecord{}
	}
	return out, nil
}

// prepare normalizes req and loads its laps. It returns ErrNoValidLaps when
// no lap could be loaded.
func (s *Service) prepare(ctx context.Context, req AnalysisRequest) (AnalysisRequest, []*telemetry.Lap, error) {
	req, laps, _, err := s.prepareWithCorners(ctx, req)
	return req, laps, err
}

func (s *Service) prepareWithCorners(ctx context.Context, req AnalysisRequest) (AnalysisRequest, []*telemetry.Lap, map[int][]telemetry.Corner, error) {
	req, err := req.normalize()
	if err != nil {
		return req, nil, nil, err
	}
	res, err := s.load(ctx, req)
	if err != nil {
		return req, nil, nil, err
	}
	if len(res.laps) == 0 {
		return req, nil, nil, fmt.Errorf("%s %s: %w", req.Event, req.Session, telemetry.ErrNoValidLaps)
	}
	return req, res.laps, res.corners, nil
}

// aggregate segments every lap with distance data. Minisectors come from the
// track's static table or, failing that, equal bins over the longest lap.
func (s *Service) aggregate(ctx context.Context, event string, laps []*telemetry.Lap) (segment.Table, error) {
	usable := lo.Filter(laps, func(l *telemetry.Lap, _ int) bool { return len(l.Samples) > 0 })
	if len(usable) == 0 {
		return segment.Table{}, fmt.Errorf("no samples: %w", telemetry.ErrNoValidLaps)
	}
	maxDistance := lo.Max(lo.Map(usable, func(l *telemetry.Lap, _ int) float64 { return l.MaxDistance() }))

	var (
		bounds []float64
		labels map[int]string
	)
	if s.tracks != nil {
		track, err := s.tracks.Track(ctx, event)
		switch {
		case err == nil:
			bounds, labels = track.Bounds, track.LabelMap()
		case !errors.Is(err, repository.ErrTrackNotFound):
			return segment.Table{}, err
		}
	}

	seg, err := segment.Resolve(bounds, maxDistance, s.minisectors)
	if err != nil {
		if errors.Is(err, telemetry.ErrDegenerateLap) {
			return segment.Table{}, fmt.Errorf("%v: %w", err, telemetry.ErrNoValidLaps)
		}
		return segment.Table{}, err
	}

	input := lo.Map(usable, func(l *telemetry.Lap, _ int) segment.LapSamples {
		return segment.LapSamples{Key: l.Key, Samples: l.Samples}
	})
	return segment.Aggregate(input, seg,
		segment.WithLabels(labels),
		segment.WithThresholds(s.thresholds),
	), nil
}

// referenceLap is the fastest lap with enough samples to serve as a baseline.
func referenceLap(laps []*telemetry.Lap) (*telemetry.Lap, error) {
	usable := lo.Filter(laps, func(l *telemetry.Lap, _ int) bool {
		return len(l.Samples) >= telemetry.MinSamples
	})
	return telemetry.FastestOverall(usable)
}

// byLapTime orders laps fastest first; ties keep request order.
func byLapTime(laps []*telemetry.Lap) []*telemetry.Lap {
	out := make([]*telemetry.Lap, len(laps))
	copy(out, laps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].LapTime < out[j].LapTime })
	return out
}
