package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/laptrace/internal/adapters/http/api"
	service "github.com/okian/laptrace/internal/app"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/internal/lapgen"
)

const event = "Synthetic Grand Prix"

func liveServer(t *testing.T) *httptest.Server {
	t.Helper()
	sessions, err := lapgen.Generate(lapgen.Plan{
		Event:          event,
		Session:        "R",
		Years:          []int{2023, 2024},
		Drivers:        []lapgen.Driver{{Code: "AAA", Pace: 1.0}, {Code: "BBB", Pace: 0.95, Line: 1}},
		Laps:           2,
		SampleInterval: 0.1,
		Seed:           7,
	})
	if err != nil {
		t.Fatal(err)
	}
	byKey := make(map[telemetry.SessionKey]*telemetry.Session, len(sessions))
	for _, s := range sessions {
		byKey[s.Key] = s
	}
	provider := telemetry.SessionProviderFunc(func(_ context.Context, key telemetry.SessionKey) (*telemetry.Session, error) {
		if s, ok := byKey[key]; ok {
			return s, nil
		}
		return nil, telemetry.ErrSessionUnavailable
	})

	svc := service.New(provider, service.WithWorkerCount(4), service.WithQueueSize(256))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func config(base string) Config {
	return Config{
		BaseURL: base,
		Event:   event,
		Session: "R",
		Years:   []int{2023, 2024},
		Drivers: []string{"aaa", "BBB"},
		Rounds:  2,
		Workers: 3,
		Timeout: 10 * time.Second,
	}
}

func TestRunAgainstLiveServer(t *testing.T) {
	Convey("Given a laptrace server over synthetic sessions", t, func() {
		srv := liveServer(t)

		Convey("When probing every analysis route", func() {
			report, err := Run(context.Background(), config(srv.URL))

			Convey("Then every answer passes its checks", func() {
				So(err, ShouldBeNil)
				So(report.Violations, ShouldBeEmpty)
				So(report.Requests, ShouldEqual, 2*len(routes))
				So(report.Succeeded+report.Backpressure, ShouldEqual, report.Requests)
				So(report.Records["/api/v1/lap-gap-evolution"], ShouldEqual, 3)
				So(report.Records["/api/v1/braking-comparison"], ShouldEqual, 4)
				So(report.Records["/api/v1/track-dominance"], ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRunFailures(t *testing.T) {
	Convey("Given misbehaving servers", t, func() {
		Convey("When the health check fails", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			_, err := Run(context.Background(), config(srv.URL))
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})

		Convey("When every analysis fails", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/healthz" {
					return
				}
				http.Error(w, "boom", http.StatusInternalServerError)
			}))
			defer srv.Close()

			report, err := Run(context.Background(), config(srv.URL))

			Convey("Then each route is reported", func() {
				So(errors.Is(err, ErrViolations), ShouldBeTrue)
				So(report.Failed, ShouldEqual, report.Requests)
				So(report.Violations, ShouldHaveLength, len(routes))
			})
		})

		Convey("When the config is incomplete", func() {
			cfg := config("http://localhost:1")
			cfg.Drivers = nil
			_, err := Run(context.Background(), cfg)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestChecks(t *testing.T) {
	keys := map[string]bool{"AAA_2023": true, "BBB_2023": true}

	Convey("Given analysis answers that break the invariants", t, func() {
		Convey("When the gap reference has a curve against itself", func() {
			body := []byte(`{"reference":"AAA_2023","curves":{"AAA_2023":[{"x":0,"y":0}],"BBB_2023":[{"x":5,"y":1},{"x":2,"y":1}]},"corners":[]}`)
			n, problems := checkGap(body, keys)

			Convey("Then self inclusion and ordering are flagged", func() {
				So(n, ShouldEqual, 2)
				So(problems, ShouldHaveLength, 2)
			})
		})

		Convey("When the fastest lap loses time to itself", func() {
			body := []byte(`[{"DriverYear":"AAA_2023","MinisectorLabel":"Fast","Diff_to_Fastest_sec":0.2,"FastestOverallDriver":"AAA","FastestOverallYear":2023}]`)
			_, problems := checkLabelLoss(body, keys)
			So(problems, ShouldHaveLength, 1)
		})

		Convey("When a dominance winner was never requested", func() {
			body := []byte(`[{"minisector":1,"fastest_driver":"ZZZ_2023","time_diff":0.1}]`)
			_, problems := checkDominance(body, keys)
			So(problems, ShouldHaveLength, 1)
		})

		Convey("When braking series differ in length", func() {
			body := []byte(`{"AAA_2023":[{"distance":0}],"BBB_2023":[{"distance":0},{"distance":1}]}`)
			_, problems := checkBraking(body, keys)
			So(problems, ShouldHaveLength, 1)
		})

		Convey("When a body is not JSON", func() {
			_, problems := checkTelemetry([]byte(`nope`), keys)
			So(problems, ShouldHaveLength, 1)
		})
	})
}
