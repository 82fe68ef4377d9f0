package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/laptrace/internal/app"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/internal/domain/types"
)

// distributionResponse wraps the braking distribution records.
type distributionResponse struct {
	Data []types.BrakingDistributionRecord `json:"data"`
}

// serve runs an analysis for the parsed request. An analysis with no usable
// laps answers 200 with empty.
func serve[T any](s *Server, w http.ResponseWriter, r *http.Request, empty T,
	run func(context.Context, service.AnalysisRequest) (T, error),
) {
	req, err := parseRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	out, err := run(ctx, req)
	switch {
	case errors.Is(err, telemetry.ErrNoValidLaps):
		writeJSON(w, http.StatusOK, empty)
	case err != nil:
		s.fail(w, r, err)
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// handleTrackDominance handles GET /api/v1/track-dominance.
func (s *Server) handleTrackDominance(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, []types.DominanceRecord{}, func(ctx context.Context, req service.AnalysisRequest) ([]types.DominanceRecord, error) {
		out, err := s.analyzer.TrackDominance(ctx, req)
		return nonNil(out), err
	})
}

// handleLabelLoss handles GET /api/v1/avg-diff.
func (s *Server) handleLabelLoss(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, []types.LabelLossRecord{}, func(ctx context.Context, req service.AnalysisRequest) ([]types.LabelLossRecord, error) {
		out, err := s.analyzer.SegmentLabelLoss(ctx, req)
		return nonNil(out), err
	})
}

func (s *Server) handleGapEvolution(w http.ResponseWriter, r *http.Request) {
	empty := types.GapEvolution{Curves: map[string][]types.GapPoint{}, Corners: []telemetry.Corner{}}
	serve(s, w, r, empty, s.analyzer.GapEvolution)
}

func (s *Server) handleBrakingComparison(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, map[string][]types.BrakingPoint{}, s.analyzer.BrakingComparison)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, map[string][]types.TelemetryPoint{}, s.analyzer.Telemetry)
}

func (s *Server) handleBrakingDistribution(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, distributionResponse{Data: []types.BrakingDistributionRecord{}},
		func(ctx context.Context, req service.AnalysisRequest) (distributionResponse, error) {
			out, err := s.analyzer.BrakingDistribution(ctx, req)
			return distributionResponse{Data: nonNil(out)}, err
		})
}

// handleGearData handles GET /api/v1/gear-data, a single-competitor query:
// a missing lap is a 404 rather than an empty result.
func (s *Server) handleGearData(w http.ResponseWriter, r *http.Request) {
	q, err := parseGearQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	out, err := s.analyzer.GearMap(ctx, q.year, q.event, q.session, q.driver)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}
