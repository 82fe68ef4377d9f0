package probe

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/laptrace/pkg/logger"
)

// route is an analysis endpoint and the checks its answer must pass.
type route struct {
	path  string
	check func(body []byte, keys map[string]bool) (records int, problems []string)
}

var routes = []route{
	{"/api/v1/track-dominance", checkDominance},
	{"/api/v1/avg-diff", checkLabelLoss},
	{"/api/v1/lap-gap-evolution", checkGap},
	{"/api/v1/braking-comparison", checkBraking},
	{"/api/v1/telemetry", checkTelemetry},
	{"/api/v1/braking-distribution", checkDistribution},
}

// Run checks the service health, requests every analysis route cfg.Rounds
// times with at most cfg.Workers requests in flight, then verifies the
// answers. It returns ErrViolations when any check fails.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.normalize(); err != nil {
		return Report{}, err
	}
	log := cfg.Logger
	start := time.Now()

	log.Info(ctx, "starting laptrace probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("event", cfg.Event),
		logger.String("session", cfg.Session),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers))

	c := newClient(&cfg)
	if err := c.health(ctx); err != nil {
		return Report{}, err
	}

	var (
		requests, succeeded, backpressure, failed atomic.Int64

		mu     sync.Mutex
		bodies = make(map[string][]byte, len(routes))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for round := 0; round < cfg.Rounds; round++ {
		for _, rt := range routes {
			g.Go(func() error {
				requests.Add(1)
				status, body, err := c.get(gctx, rt.path, true)
				switch {
				case err != nil:
					failed.Add(1)
					log.Warn(gctx, "probe request failed", logger.String("path", rt.path), logger.Error(err))
				case status == http.StatusTooManyRequests:
					backpressure.Add(1)
				case status == http.StatusOK:
					succeeded.Add(1)
					mu.Lock()
					bodies[rt.path] = body
					mu.Unlock()
				default:
					failed.Add(1)
					log.Warn(gctx, "probe request rejected",
						logger.String("path", rt.path),
						logger.Int("status", status),
						logger.String("body", string(body)))
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{
		Requests:     int(requests.Load()),
		Succeeded:    int(succeeded.Load()),
		Backpressure: int(backpressure.Load()),
		Failed:       int(failed.Load()),
		Records:      make(map[string]int, len(routes)),
	}

	keys := cfg.keys()
	for _, rt := range routes {
		body, ok := bodies[rt.path]
		if !ok {
			report.Violations = append(report.Violations, rt.path+": no successful response")
			continue
		}
		n, problems := rt.check(body, keys)
		report.Records[rt.path] = n
		for _, p := range problems {
			report.Violations = append(report.Violations, rt.path+": "+p)
		}
	}
	report.Duration = time.Since(start)

	log.Info(ctx, "probe finished",
		logger.Int("requests", report.Requests),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("backpressure", report.Backpressure),
		logger.Int("failed", report.Failed),
		logger.Int("violations", len(report.Violations)),
		logger.String("duration", report.Duration.String()))

	if len(report.Violations) > 0 {
		return report, fmt.Errorf("%d problems: %w", len(report.Violations), ErrViolations)
	}
	return report, nil
}
