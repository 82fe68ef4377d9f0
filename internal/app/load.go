package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	lapqueue "github.com/okian/laptrace/internal/adapters/mq/queue"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/pkg/logger"
	"github.com/okian/laptrace/pkg/metrics"
)

// AnalysisRequest selects the fastest lap of every (year, driver) pair of one
// event session.
type AnalysisRequest struct {
	Event   string
	Session string
	Years   []int
	Drivers []string
}

// normalize trims and dedupes the request, keeping first-seen order.
func (r AnalysisRequest) normalize() (AnalysisRequest, error) {
	r.Event = strings.TrimSpace(r.Event)
	r.Session = strings.TrimSpace(r.Session)
	drivers := lo.FilterMap(r.Drivers, func(d string, _ int) (string, bool) {
		d = strings.ToUpper(strings.TrimSpace(d))
		return d, d != ""
	})
	r.Drivers = lo.Uniq(drivers)
	r.Years = lo.Uniq(r.Years)

	switch {
	case r.Event == "":
		return r, fmt.Errorf("event is required: %w", ErrInvalidRequest)
	case r.Session == "":
		return r, fmt.Errorf("session identifier is required: %w", ErrInvalidRequest)
	case len(r.Years) == 0:
		return r, fmt.Errorf("at least one year is required: %w", ErrInvalidRequest)
	case len(r.Drivers) == 0:
		return r, fmt.Errorf("at least one driver is required: %w", ErrInvalidRequest)
	}
	for _, y := range r.Years {
		if y <= 0 {
			return r, fmt.Errorf("year %d: %w", y, ErrInvalidRequest)
		}
	}
	return r, nil
}

func (r AnalysisRequest) sessionKey(year int) telemetry.SessionKey {
	return telemetry.SessionKey{Year: year, Event: r.Event, Identifier: r.Session}
}

// loaded is the outcome of a request's lap fan-out.
type loaded struct {
	// laps holds every timed lap in request order: years outer, drivers inner.
	laps []*telemetry.Lap
	// corners holds the corner markers per session year.
	corners map[int][]telemetry.Corner
	// errs holds the failed jobs in request order.
	errs []error
}

// load enqueues one job per (year, driver) and waits for every reply.
// Per-job failures are logged, counted and skipped.
func (s *Service) load(ctx context.Context, req AnalysisRequest) (loaded, error) {
	s.mu.RLock()
	started, q := s.started, s.queue
	s.mu.RUnlock()
	if !started {
		return loaded{}, ErrNotStarted
	}

	type slot struct {
		year   int
		driver string
	}
	slots := make([]slot, 0, len(req.Years)*len(req.Drivers))
	for _, y := range req.Years {
		for _, d := range req.Drivers {
			slots = append(slots, slot{year: y, driver: d})
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reply := make(chan lapqueue.Result, len(slots))
	for i, sl := range slots {
		err := q.Enqueue(jobCtx, lapqueue.Job{
			ID:      strconv.Itoa(i),
			Ctx:     jobCtx,
			Session: req.sessionKey(sl.year),
			Driver:  sl.driver,
			Reply:   reply,
		})
		switch {
		case errors.Is(err, lapqueue.ErrFull):
			return loaded{}, fmt.Errorf("%d of %d jobs queued: %w", i, len(slots), ErrBackpressure)
		case err != nil:
			return loaded{}, fmt.Errorf("enqueue: %w", err)
		}
	}

	results := make([]lapqueue.Result, len(slots))
	for range slots {
		select {
		case <-ctx.Done():
			return loaded{}, ctx.Err()
		case r := <-reply:
			i, err := strconv.Atoi(r.JobID)
			if err != nil || i < 0 || i >= len(results) {
				continue
			}
			results[i] = r
		}
	}

	out := loaded{corners: make(map[int][]telemetry.Corner)}
	for _, r := range results {
		if len(r.Corners) > 0 {
			if _, ok := out.corners[r.Session.Year]; !ok {
				out.corners[r.Session.Year] = r.Corners
			}
		}
		err := r.Err
		if err == nil && (r.Lap == nil || !r.Lap.Timed()) {
			err = fmt.Errorf("%s in %s has no lap time: %w", r.Driver, r.Session, telemetry.ErrLapNotFound)
		}
		if err != nil {
			reason := skipReason(err)
			metrics.RecordLapSkipped(reason)
			s.logger.Info(ctx, "lap skipped",
				logger.String("session", r.Session.String()),
				logger.String("driver", r.Driver),
				logger.String("reason", reason),
				logger.Error(err),
			)
			out.errs = append(out.errs, err)
			continue
		}
		if n := r.Lap.DropNonFinite(); n > 0 {
			s.logger.Warn(ctx, "non-finite samples dropped",
				logger.String("session", r.Session.String()),
				logger.String("driver", r.Driver),
				logger.Int("dropped", n),
			)
		}
		metrics.RecordLapLoaded()
		out.laps = append(out.laps, r.Lap)
	}
	return out, nil
}

// loadOne resolves a single competitor's fastest lap and passes its error
// through instead of skipping it.
func (s *Service) loadOne(ctx context.Context, req AnalysisRequest) (*telemetry.Lap, error) {
	res, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.laps) == 0 {
		if len(res.errs) > 0 {
			return nil, res.errs[0]
		}
		return nil, telemetry.ErrLapNotFound
	}
	return res.laps[0], nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, telemetry.ErrLapNotFound):
		return "lap_not_found"
	case errors.Is(err, telemetry.ErrSessionUnavailable):
		return "session_unavailable"
	case errors.Is(err, telemetry.ErrDegenerateLap):
		return "degenerate"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, lapqueue.ErrClosed):
		return "shutdown"
	default:
		return "error"
	}
}
