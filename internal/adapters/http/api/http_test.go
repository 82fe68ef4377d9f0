package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/okian/laptrace/internal/adapters/http/api"
	service "github.com/okian/laptrace/internal/app"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type gearCall struct {
	year                   int
	event, session, driver string
}

type stubAnalyzer struct {
	err   error
	calls int
	req   service.AnalysisRequest
	gear  gearCall
	nan   bool
}

func (s *stubAnalyzer) record(req service.AnalysisRequest) error {
	s.calls++
	s.req = req
	return s.err
}

func (s *stubAnalyzer) TrackDominance(_ context.Context, req service.AnalysisRequest) ([]types.DominanceRecord, error) {
	if err := s.record(req); err != nil {
		return nil, err
	}
	return []types.DominanceRecord{{Minisector: 1, FastestDriver: "VER_2023", Driver: "VER", Year: 2023}}, nil
}

func (s *stubAnalyzer) SegmentLabelLoss(_ context.Context, req service.AnalysisRequest) ([]types.LabelLossRecord, error) {
	if err := s.record(req); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *stubAnalyzer) GapEvolution(_ context.Context, req service.AnalysisRequest) (types.GapEvolution, error) {
	if err := s.record(req); err != nil {
		return types.GapEvolution{}, err
	}
	return types.GapEvolution{
		Reference: "VER_2023",
		Curves:    map[string][]types.GapPoint{"LEC_2023": {{X: 10, Y: 0.1}}},
		Corners:   []telemetry.Corner{{Distance: 300, Label: "1"}},
	}, nil
}

func (s *stubAnalyzer) BrakingComparison(_ context.Context, req service.AnalysisRequest) (map[string][]types.BrakingPoint, error) {
	if err := s.record(req); err != nil {
		return nil, err
	}
	return map[string][]types.BrakingPoint{"VER_2023": {{Distance: 0, ReferenceBrake: 1, DriverBrake: 1}}}, nil
}

func (s *stubAnalyzer) Telemetry(_ context.Context, req service.AnalysisRequest) (map[string][]types.TelemetryPoint, error) {
	if err := s.record(req); err != nil {
		return nil, err
	}
	if s.nan {
		return map[string][]types.TelemetryPoint{"VER_2023": {{Distance: 1, Speed: math.NaN()}}}, nil
	}
	return map[string][]types.TelemetryPoint{"VER_2023": {{Distance: 1, Speed: 200}}}, nil
}

func (s *stubAnalyzer) GearMap(_ context.Context, year int, event, session, driver string) ([]types.GearPoint, error) {
	s.calls++
	s.gear = gearCall{year: year, event: event, session: session, driver: driver}
	if s.err != nil {
		return nil, s.err
	}
	return []types.GearPoint{{X: 1, Y: 2, Gear: 7}}, nil
}

func (s *stubAnalyzer) BrakingDistribution(_ context.Context, req service.AnalysisRequest) ([]types.BrakingDistributionRecord, error) {
	if err := s.record(req); err != nil {
		return nil, err
	}
	return []types.BrakingDistributionRecord{{Driver: "VER", Year: 2023, Lap: 4, BrakingDistance: 812}}, nil
}

type stubStats map[string]interface{}

func (s stubStats) GetStats() map[string]interface{} { return s }

func query(path string, v url.Values) string {
	return path + "?" + v.Encode()
}

func monza() url.Values {
	return url.Values{
		"session_name": {"Italian Grand Prix"},
		"identifier":   {"Q"},
		"session_year": {"2023,2024"},
		"drivers":      {"VER", "lec"},
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeError(w *httptest.ResponseRecorder) errorBody {
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body
}

func TestServerRoutes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		analyzer := &stubAnalyzer{}
		server := api.NewServer(analyzer, stubStats{"started": true})
		mux := http.NewServeMux()
		server.Register(context.Background(), mux)

		do := func(method, target string, header http.Header) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, target, http.NoBody)
			for k, v := range header {
				req.Header[http.CanonicalHeaderKey(k)] = v
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			return w
		}

		Convey("When probing health and stats", func() {
			health := do(http.MethodGet, "/healthz", nil)
			stats := do(http.MethodGet, "/stats", nil)

			Convey("Then both answer 200", func() {
				So(health.Code, ShouldEqual, http.StatusOK)
				So(stats.Code, ShouldEqual, http.StatusOK)
				So(stats.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				So(stats.Body.String(), ShouldContainSubstring, `"started":true`)
			})
		})

		Convey("When requesting track dominance", func() {
			w := do(http.MethodGet, query("/api/v1/track-dominance", monza()), nil)

			Convey("Then repeated and comma separated values are collected", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(analyzer.req.Event, ShouldEqual, "Italian Grand Prix")
				So(analyzer.req.Session, ShouldEqual, "Q")
				So(analyzer.req.Years, ShouldResemble, []int{2023, 2024})
				So(analyzer.req.Drivers, ShouldResemble, []string{"VER", "lec"})

				var out []types.DominanceRecord
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out, ShouldHaveLength, 1)
				So(out[0].FastestDriver, ShouldEqual, "VER_2023")
			})

			Convey("Then a request id is assigned", func() {
				So(w.Header().Get(api.HeaderRequestID), ShouldNotBeEmpty)
			})
		})

		Convey("When the caller supplies a request id", func() {
			w := do(http.MethodGet, query("/api/v1/telemetry", monza()),
				http.Header{api.HeaderRequestID: {"abc-123"}})

			Convey("Then it is echoed back", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get(api.HeaderRequestID), ShouldEqual, "abc-123")
			})
		})

		Convey("When the years and drivers use the plural and singular names", func() {
			v := url.Values{
				"session_name":  {"Italian Grand Prix"},
				"identifier":    {"R"},
				"session_years": {"2022"},
				"session_year":  {"2021"},
				"driver":        {"HAM"},
			}
			w := do(http.MethodGet, query("/api/v1/braking-comparison", v), nil)

			Convey("Then both spellings are accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(analyzer.req.Years, ShouldResemble, []int{2021, 2022})
				So(analyzer.req.Drivers, ShouldResemble, []string{"HAM"})
			})
		})

		Convey("When a year is not a number", func() {
			v := monza()
			v.Set("session_year", "2023,last")
			w := do(http.MethodGet, query("/api/v1/avg-diff", v), nil)

			Convey("Then the request is rejected before any analysis runs", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w).Code, ShouldEqual, "bad_request")
				So(analyzer.calls, ShouldEqual, 0)
			})
		})

		Convey("When the service rejects the request", func() {
			analyzer.err = fmt.Errorf("event is required: %w", service.ErrInvalidRequest)
			w := do(http.MethodGet, "/api/v1/track-dominance", nil)

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeError(w)
				So(body.Code, ShouldEqual, "bad_request")
				So(body.Message, ShouldContainSubstring, "event is required")
			})
		})

		Convey("When the lap loader is saturated", func() {
			analyzer.err = service.ErrBackpressure
			w := do(http.MethodGet, query("/api/v1/lap-gap-evolution", monza()), nil)

			Convey("Then it answers 429", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decodeError(w).Code, ShouldEqual, "backpressure")
			})
		})

		Convey("When an analysis fails unexpectedly", func() {
			analyzer.err = errors.New("boom")
			w := do(http.MethodGet, query("/api/v1/telemetry", monza()), nil)

			Convey("Then it answers 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w).Code, ShouldEqual, "internal_error")
			})
		})

		Convey("When a result holds a number JSON cannot carry", func() {
			analyzer.nan = true
			w := do(http.MethodGet, query("/api/v1/telemetry", monza()), nil)

			Convey("Then it answers 500 with an error body instead of an empty 200", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.Len(), ShouldBeGreaterThan, 0)
				So(decodeError(w).Code, ShouldEqual, "internal_error")
			})
		})

		Convey("When no usable lap is left", func() {
			analyzer.err = fmt.Errorf("dominance: %w", telemetry.ErrNoValidLaps)

			cases := []struct {
				path string
				body string
			}{
				{"/api/v1/track-dominance", `[]`},
				{"/api/v1/avg-diff", `[]`},
				{"/api/v1/lap-gap-evolution", `{"reference":"","curves":{},"corners":[]}`},
				{"/api/v1/braking-comparison", `{}`},
				{"/api/v1/telemetry", `{}`},
				{"/api/v1/braking-distribution", `{"data":[]}`},
			}

			Convey("Then every collection route answers an empty 200", func() {
				for _, c := range cases {
					w := do(http.MethodGet, query(c.path, monza()), nil)
					So(w.Code, ShouldEqual, http.StatusOK)
					So(strings.TrimSpace(w.Body.String()), ShouldEqual, c.body)
				}
			})
		})

		Convey("When an analysis returns nothing without error", func() {
			w := do(http.MethodGet, query("/api/v1/avg-diff", monza()), nil)

			Convey("Then the body is an empty array rather than null", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `[]`)
			})
		})

		Convey("When requesting the braking distribution", func() {
			w := do(http.MethodGet, query("/api/v1/braking-distribution", monza()), nil)

			Convey("Then records are wrapped in data", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out struct {
					Data []types.BrakingDistributionRecord `json:"data"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.Data, ShouldHaveLength, 1)
				So(out.Data[0].Lap, ShouldEqual, 4)
			})
		})

		Convey("When requesting gear data for one competitor", func() {
			v := url.Values{
				"session_name": {"Italian Grand Prix"},
				"identifier":   {"Q"},
				"session_year": {"2023"},
				"driver":       {"ver"},
			}
			w := do(http.MethodGet, query("/api/v1/gear-data", v), nil)

			Convey("Then the single lap is looked up", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(analyzer.gear, ShouldResemble, gearCall{year: 2023, event: "Italian Grand Prix", session: "Q", driver: "VER"})
				So(w.Body.String(), ShouldContainSubstring, `"gear":7`)
			})
		})

		Convey("When gear data names several years", func() {
			w := do(http.MethodGet, query("/api/v1/gear-data", monza()), nil)

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(analyzer.calls, ShouldEqual, 0)
			})
		})

		Convey("When the gear data lap does not exist", func() {
			analyzer.err = fmt.Errorf("VER_2023: %w", telemetry.ErrLapNotFound)
			v := url.Values{
				"session_name": {"Italian Grand Prix"},
				"identifier":   {"Q"},
				"session_year": {"2023"},
				"driver":       {"VER"},
			}
			w := do(http.MethodGet, query("/api/v1/gear-data", v), nil)

			Convey("Then it answers 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w).Code, ShouldEqual, "not_found")
			})
		})

		Convey("When using the wrong method or an unknown path", func() {
			post := do(http.MethodPost, query("/api/v1/track-dominance", monza()), nil)
			unknown := do(http.MethodGet, "/api/v1/unknown", nil)

			Convey("Then the mux rejects them", func() {
				So(post.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(unknown.Code, ShouldEqual, http.StatusNotFound)
				So(analyzer.calls, ShouldEqual, 0)
			})
		})
	})
}

func TestServerRegisterNilMux(t *testing.T) {
	Convey("Given a server", t, func() {
		server := api.NewServer(&stubAnalyzer{}, stubStats{})

		Convey("Then registering on a nil mux panics", func() {
			So(func() { server.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}
