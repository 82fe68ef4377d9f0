package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/laptrace/internal/adapters/repository"
	service "github.com/okian/laptrace/internal/app"
	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/internal/lapgen"
)

const event = "Synthetic Grand Prix"

func provider(t *testing.T) telemetry.SessionProvider {
	t.Helper()
	sessions, err := lapgen.Generate(lapgen.Plan{
		Event:          event,
		Session:        "Q",
		Years:          []int{2023, 2024},
		Drivers:        []lapgen.Driver{{Code: "AAA", Pace: 1.0}, {Code: "BBB", Pace: 0.9, Line: 1.5}},
		Laps:           2,
		SampleInterval: 0.05,
		Seed:           42,
	})
	if err != nil {
		t.Fatal(err)
	}
	byKey := make(map[telemetry.SessionKey]*telemetry.Session, len(sessions))
	for _, s := range sessions {
		byKey[s.Key] = s
	}
	return telemetry.SessionProviderFunc(func(_ context.Context, key telemetry.SessionKey) (*telemetry.Session, error) {
		s, ok := byKey[key]
		if !ok {
			return nil, telemetry.ErrSessionUnavailable
		}
		return s, nil
	})
}

type staticTracks map[string]repository.Track

func (s staticTracks) Track(_ context.Context, ev string) (repository.Track, error) {
	t, ok := s[ev]
	if !ok {
		return repository.Track{}, repository.ErrTrackNotFound
	}
	return t, nil
}

func (s staticTracks) Tracks(context.Context) []repository.Track {
	out := make([]repository.Track, 0, len(s))
	for _, t := range s {
		out = append(out, t)
	}
	return out
}

func request() service.AnalysisRequest {
	return service.AnalysisRequest{
		Event:   event,
		Session: "Q",
		Years:   []int{2023, 2024},
		Drivers: []string{"AAA", "bbb"},
	}
}

func started(t *testing.T, p telemetry.SessionProvider, opts ...service.Option) *service.Service {
	t.Helper()
	svc := service.New(p, append([]service.Option{service.WithWorkerCount(4), service.WithQueueSize(64)}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(provider(t), service.WithWorkerCount(2), service.WithQueueSize(8))

		Convey("When it is not started", func() {
			_, err := svc.Telemetry(context.Background(), request())

			Convey("Then analyses are refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			stats := svc.GetStats()
			svc.Stop()
			svc.Stop()

			Convey("Then stats reflect the running state", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["queueLength"], ShouldEqual, 0)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Requests(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := started(t, provider(t))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When the request is incomplete", func() {
			cases := []service.AnalysisRequest{
				{Session: "Q", Years: []int{2023}, Drivers: []string{"AAA"}},
				{Event: event, Years: []int{2023}, Drivers: []string{"AAA"}},
				{Event: event, Session: "Q", Drivers: []string{"AAA"}},
				{Event: event, Session: "Q", Years: []int{2023}, Drivers: []string{" "}},
			}
			for _, req := range cases {
				_, err := svc.TrackDominance(ctx, req)
				So(errors.Is(err, service.ErrInvalidRequest), ShouldBeTrue)
			}
		})

		Convey("When no requested driver has a lap", func() {
			req := request()
			req.Drivers = []string{"ZZZ"}
			_, err := svc.SegmentLabelLoss(ctx, req)

			Convey("Then the result is empty", func() {
				So(errors.Is(err, telemetry.ErrNoValidLaps), ShouldBeTrue)
			})
		})

		Convey("When some drivers are missing", func() {
			req := request()
			req.Drivers = append(req.Drivers, "ZZZ")
			out, err := svc.Telemetry(ctx, req)

			Convey("Then they are skipped", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 4)
				So(out, ShouldContainKey, "BBB_2023")
			})
		})
	})
}

func TestService_Analyses(t *testing.T) {
	Convey("Given a started service over two years of two drivers", t, func() {
		svc := started(t, provider(t))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When computing track dominance", func() {
			out, err := svc.TrackDominance(ctx, request())
			So(err, ShouldBeNil)

			Convey("Then every reference sample is tagged with a quicker driver", func() {
				So(len(out), ShouldBeGreaterThan, 1000)
				seen := map[int]bool{}
				for _, r := range out {
					So(r.Driver, ShouldEqual, "AAA")
					So(r.FastestDriver, ShouldStartWith, "AAA_")
					So(r.TimeGainSeconds, ShouldBeGreaterThan, 0)
					So(r.Label, ShouldNotBeEmpty)
					seen[r.Minisector] = true
				}
				So(seen, ShouldHaveLength, 12)
			})
		})

		Convey("When computing label losses", func() {
			out, err := svc.SegmentLabelLoss(ctx, request())
			So(err, ShouldBeNil)

			Convey("Then the fastest lap loses nothing and the slower driver loses time", func() {
				So(out, ShouldNotBeEmpty)
				for _, r := range out {
					So(r.FastestOverallDriver, ShouldEqual, "AAA")
					So(r.FastestOverallYear, ShouldEqual, 2024)
					switch r.DriverYear {
					case "AAA_2024":
						So(r.MeanDiffToFastestSeconds, ShouldEqual, 0)
					case "BBB_2023", "BBB_2024":
						So(r.MeanDiffToFastestSeconds, ShouldBeGreaterThan, 0)
					}
				}
			})
		})

		Convey("When computing gap evolution", func() {
			out, err := svc.GapEvolution(ctx, request())
			So(err, ShouldBeNil)

			Convey("Then the reference is excluded from the curves", func() {
				So(out.Reference, ShouldEqual, "AAA_2024")
				So(out.Curves, ShouldHaveLength, 3)
				So(out.Curves, ShouldNotContainKey, "AAA_2024")
				So(out.Corners, ShouldHaveLength, lapgen.DefaultCorners)
			})

			Convey("Then slower laps end up behind", func() {
				curve := out.Curves["BBB_2023"]
				So(len(curve), ShouldBeGreaterThan, 10)
				So(curve[len(curve)-1].Y, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When comparing braking", func() {
			out, err := svc.BrakingComparison(ctx, request())
			So(err, ShouldBeNil)

			Convey("Then every lap is on the reference grid", func() {
				So(out, ShouldHaveLength, 4)
				ref := out["AAA_2024"]
				for _, rows := range out {
					So(rows, ShouldHaveLength, len(ref))
				}
			})
		})

		Convey("When fetching the gear map", func() {
			out, err := svc.GearMap(ctx, 2023, event, "Q", "bbb")
			So(err, ShouldBeNil)
			So(out, ShouldNotBeEmpty)

			_, err = svc.GearMap(ctx, 2023, event, "Q", "ZZZ")
			So(errors.Is(err, telemetry.ErrLapNotFound), ShouldBeTrue)
		})

		Convey("When computing the braking distribution", func() {
			req := request()
			req.Years = append(req.Years, 1999)
			out, err := svc.BrakingDistribution(ctx, req)

			Convey("Then only clean laps of available sessions are reported", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 8)
				for _, r := range out {
					So(r.BrakingDistance, ShouldBeGreaterThan, 0)
					So(r.Lap, ShouldBeBetween, 1, 4)
				}
			})
		})
	})

	Convey("Given a track with a static table", t, func() {
		tracks := staticTracks{event: {
			Name:   event,
			Bounds: []float64{0, 1000, 2500, 4000},
			Labels: []string{"Fast", "Slow", "Chicane"},
		}}
		svc := started(t, provider(t), service.WithTrackStore(tracks))
		defer svc.Stop()

		out, err := svc.TrackDominance(context.Background(), request())
		So(err, ShouldBeNil)

		Convey("Then its minisectors and labels are used, tail included", func() {
			labels := map[int]string{}
			for _, r := range out {
				labels[r.Minisector] = r.Label
			}
			So(labels, ShouldHaveLength, 4)
			So(labels[1], ShouldEqual, "Fast")
			So(labels[3], ShouldEqual, "Chicane")
			So(labels[4], ShouldNotBeEmpty)
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a single worker stuck on a slow provider", t, func() {
		gate := make(chan struct{})
		slow := telemetry.SessionProviderFunc(func(ctx context.Context, _ telemetry.SessionKey) (*telemetry.Session, error) {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return nil, telemetry.ErrSessionUnavailable
		})
		svc := service.New(slow, service.WithWorkerCount(1), service.WithQueueSize(1))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		defer close(gate)

		req := request()
		req.Years = []int{2019, 2020, 2021}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := svc.Telemetry(ctx, req)

		Convey("Then the request is rejected instead of queued", func() {
			So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
		})
	})
}
