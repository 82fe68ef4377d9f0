// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	service "github.com/okian/laptrace/internal/app"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/internal/domain/types"
	"github.com/okian/laptrace/pkg/logger"
)

// Analyzer runs the lap analyses behind the business routes.
type Analyzer interface {
	TrackDominance(ctx context.Context, req service.AnalysisRequest) ([]types.DominanceRecord, error)
	SegmentLabelLoss(ctx context.Context, req service.AnalysisRequest) ([]types.LabelLossRecord, error)
	GapEvolution(ctx context.Context, req service.AnalysisRequest) (types.GapEvolution, error)
	BrakingComparison(ctx context.Context, req service.AnalysisRequest) (map[string][]types.BrakingPoint, error)
	Telemetry(ctx context.Context, req service.AnalysisRequest) (map[string][]types.TelemetryPoint, error)
	GearMap(ctx context.Context, year int, event, session, driver string) ([]types.GearPoint, error)
	BrakingDistribution(ctx context.Context, req service.AnalysisRequest) ([]types.BrakingDistributionRecord, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRequestTimeout bounds every analysis call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	analyzer      Analyzer
	healthHandler *HealthHandler
	stats         StatsProvider
	timeout       time.Duration
	logger        logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(analyzer Analyzer, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		analyzer:      analyzer,
		healthHandler: NewHealthHandler(),
		stats:         statsProvider,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	s.route(mux, "/healthz", "healthz", s.healthHandler.HandleHealth)
	s.route(mux, "/stats", "stats", s.handleStats)

	s.route(mux, "/api/v1/track-dominance", "track_dominance", s.handleTrackDominance)
	s.route(mux, "/api/v1/avg-diff", "avg_diff", s.handleLabelLoss)
	s.route(mux, "/api/v1/lap-gap-evolution", "lap_gap_evolution", s.handleGapEvolution)
	s.route(mux, "/api/v1/braking-comparison", "braking_comparison", s.handleBrakingComparison)
	s.route(mux, "/api/v1/telemetry", "telemetry", s.handleTelemetry)
	s.route(mux, "/api/v1/gear-data", "gear_data", s.handleGearData)
	s.route(mux, "/api/v1/braking-distribution", "braking_distribution", s.handleBrakingDistribution)
}

func (s *Server) route(mux *http.ServeMux, path, endpoint string, h http.HandlerFunc) {
	mux.HandleFunc(http.MethodGet+" "+path, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
}

// withTimeout applies the configured analysis bound to ctx.
func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// fail maps err onto the error contract and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "analysis failed",
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

// classify returns the HTTP status and error code for err.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, telemetry.ErrLapNotFound), errors.Is(err, telemetry.ErrSessionUnavailable):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v before committing the status, so a value that cannot be
// encoded turns into a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(errorResponse{Code: "internal_error", Message: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
