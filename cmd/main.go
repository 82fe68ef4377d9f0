package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/okian/laptrace/internal/adapters/cache"
	"github.com/okian/laptrace/internal/adapters/http/api"
	"github.com/okian/laptrace/internal/adapters/http/swagger"
	"github.com/okian/laptrace/internal/adapters/provider/sqlitestore"
	"github.com/okian/laptrace/internal/adapters/repository"
	service "github.com/okian/laptrace/internal/app"
	"github.com/okian/laptrace/internal/config"
	"github.com/okian/laptrace/internal/domain/segment"
	"github.com/okian/laptrace/pkg/logger"
	"github.com/okian/laptrace/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeSlack                = 5 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintln(os.Stderr, "failed to sync logs:", err)
		}
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "laptrace stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, closeStore, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.RequestTimeout() + writeSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %v: %w", err, api.ErrServe)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService opens the telemetry store, memoizes it and loads the track
// catalog. The returned func closes the store.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, func(), error) {
	store, err := sqlitestore.Open(ctx, cfg.DatabasePath, sqlitestore.WithLogger(log.Named("sqlite")))
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "closing telemetry store", logger.Error(err))
		}
	}

	tracks, err := repository.NewCatalog(ctx,
		repository.WithOverrideFile(cfg.TracksFile),
		repository.WithLogger(log.Named("tracks")),
	)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	sessions := cache.New(store,
		cache.WithMaxSize(cfg.SessionCacheSize),
		cache.WithTTL(cfg.SessionCacheTTL()),
		cache.WithLogger(log.Named("session-cache")),
	)

	svc := service.New(sessions,
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
		service.WithLogger(log.Named("service")),
	)
	return svc, closeStore, nil
}

// newHandler registers the docs and business routes behind CORS.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithRequestTimeout(cfg.RequestTimeout()),
		api.WithLogger(log.Named("api")),
	)
	apiServer.Register(ctx, mux)

	return cors.New(cors.Options{
		AllowedOrigins: cfg.Origins(),
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{api.HeaderRequestID},
	}).Handler(mux)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics copies service stats into gauges.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if cached, ok := stats["cachedSessions"].(int); ok {
		metrics.UpdateCacheSize(cached)
	}
}
