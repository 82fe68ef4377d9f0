// Package service provides the analysis service that implements the
// dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	lapqueue "github.com/okian/laptrace/internal/adapters/mq/queue"
	workerpool "github.com/okian/laptrace/internal/adapters/mq/worker"
	"github.com/okian/laptrace/internal/adapters/repository"
	"github.com/okian/laptrace/internal/domain/braking"
	"github.com/okian/laptrace/internal/domain/gap"
	"github.com/okian/laptrace/internal/domain/segment"
	"github.com/okian/laptrace/internal/domain/spatial"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/pkg/logger"
	"github.com/okian/laptrace/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// Service runs lap telemetry analyses.
type Service struct {
	mu sync.RWMutex

	// Core components
	provider telemetry.SessionProvider
	tracks   repository.Store
	queue    lapqueue.Queue
	pool     *workerpool.Pool

	// Configuration
	workerCount    int
	queueSize      int
	minisectors    int
	targetSamples  int
	matchThreshold float64
	gapWindow      int
	brakeThreshold float64
	thresholds     segment.Thresholds

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithTrackStore sets the static minisector tables. Without one every track
// uses equal minisectors.
func WithTrackStore(store repository.Store) Option {
	return func(s *Service) {
		s.tracks = store
	}
}

// WithWorkerCount sets the number of lap loader goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the lap load queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMinisectorCount sets the number of equal minisectors for tracks
// without a static table.
func WithMinisectorCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minisectors = n
		}
	}
}

// WithMatchTargetSamples sets how many query samples the spatial matcher keeps.
func WithMatchTargetSamples(n int) Option {
	return func(s *Service) {
		if n > 1 {
			s.targetSamples = n
		}
	}
}

// WithMatchDistanceThreshold sets the along-track disagreement in metres
// above which the nearest spatial candidate is distrusted.
func WithMatchDistanceThreshold(metres float64) Option {
	return func(s *Service) {
		if metres > 0 {
			s.matchThreshold = metres
		}
	}
}

// WithGapSmoothingWindow sets the gap curve moving-average width.
func WithGapSmoothingWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.gapWindow = n
		}
	}
}

// WithBrakeDecelThreshold sets the per-sample speed drop marking ideal braking.
func WithBrakeDecelThreshold(v float64) Option {
	return func(s *Service) {
		if v > 0 {
			s.brakeThreshold = v
		}
	}
}

// WithLabelThresholds sets the minimum-speed label cut-offs.
func WithLabelThresholds(t segment.Thresholds) Option {
	return func(s *Service) {
		if t.SlowBelow < t.MediumBelow && t.MediumBelow < t.FastBelow {
			s.thresholds = t
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service reading sessions from provider.
func New(provider telemetry.SessionProvider, opts ...Option) *Service {
	s := &Service{
		provider:       provider,
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      1_000,
		minisectors:    segment.DefaultCount,
		targetSamples:  spatial.DefaultTargetSamples,
		matchThreshold: spatial.DefaultDistanceThreshold,
		gapWindow:      gap.DefaultWindow,
		brakeThreshold: braking.DefaultDecelThreshold,
		thresholds:     segment.DefaultThresholds,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the lap load queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting analysis service...")

	s.queue = lapqueue.NewInMemoryQueue(lapqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.provider,
		workerpool.WithPoolLogger(s.logger.Named("lap-loader")),
	)

	// Workers outlive the start request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("minisectors", s.minisectors),
	)
	return nil
}

// Stop gracefully shuts down the worker pool.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping analysis service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()

	s.started = false
	s.logger.Info(ctx, "analysis service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"minisectors":    s.minisectors,
		"matchThreshold": s.matchThreshold,
		"gapWindow":      s.gapWindow,
	}

	if s.started {
		queueLen := s.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	if c, ok := s.provider.(interface{ Len() int }); ok {
		stats["cachedSessions"] = c.Len()
	}
	if s.tracks != nil {
		stats["tracks"] = len(s.tracks.Tracks(context.Background()))
	}

	return stats
}

func (s *Service) matcher() *spatial.Matcher {
	return spatial.NewMatcher(
		spatial.WithTargetSamples(s.targetSamples),
		spatial.WithDistanceThreshold(s.matchThreshold),
	)
}
