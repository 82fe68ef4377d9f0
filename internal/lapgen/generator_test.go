package lapgen

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/laptrace/internal/domain/telemetry"
)

func plan() Plan {
	return Plan{
		Event:   "Synthetic Grand Prix",
		Session: "Q",
		Years:   []int{2023, 2024},
		Drivers: []Driver{{Code: "AAA", Pace: 1.0}, {Code: "BBB", Pace: 0.97, Line: 1.5}},
		Laps:    2,
		Seed:    7,
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a two-year, two-driver plan", t, func() {
		sessions, err := Generate(plan())
		So(err, ShouldBeNil)

		Convey("Then one session per year is produced", func() {
			So(sessions, ShouldHaveLength, 2)
			So(sessions[1].Key, ShouldResemble, telemetry.SessionKey{Year: 2024, Event: "Synthetic Grand Prix", Identifier: "Q"})
			So(sessions[0].Corners, ShouldHaveLength, DefaultCorners)
		})

		Convey("Then every driver has out, timed and in laps", func() {
			laps := sessions[0].DriverLaps("AAA")
			So(laps, ShouldHaveLength, 4)
			So(laps[0].PitOut, ShouldBeTrue)
			So(laps[3].PitIn, ShouldBeTrue)
			So(laps[1].Clean(), ShouldBeTrue)
		})

		Convey("Then laps cover the whole track in increasing distance", func() {
			lap := sessions[0].Laps[1]
			So(lap.Validate(), ShouldBeNil)
			So(lap.MaxDistance(), ShouldBeBetweenOrEqual, DefaultTrackLength, DefaultTrackLength+100)
			So(lap.LapTime, ShouldBeLessThanOrEqualTo, lap.Samples[len(lap.Samples)-1].Time)
			for i := 1; i < len(lap.Samples); i++ {
				So(lap.Samples[i].Distance, ShouldBeGreaterThan, lap.Samples[i-1].Distance)
			}
		})

		Convey("Then the quicker driver sets the quicker lap", func() {
			a, err := sessions[0].FastestLap("AAA")
			So(err, ShouldBeNil)
			b, err := sessions[0].FastestLap("BBB")
			So(err, ShouldBeNil)
			So(a.LapTime, ShouldBeLessThan, b.LapTime)
		})

		Convey("Then the same seed reproduces the same laps", func() {
			again, err := Generate(plan())
			So(err, ShouldBeNil)
			So(again[0].Laps[2].LapTime, ShouldEqual, sessions[0].Laps[2].LapTime)
		})

		Convey("Then some samples are braking zones", func() {
			braking := 0
			for _, s := range sessions[0].Laps[1].Samples {
				if s.Brake > 0 {
					braking++
				}
			}
			So(braking, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given an incomplete plan", t, func() {
		_, err := Generate(Plan{Event: "X", Session: "Q"})
		So(err, ShouldNotBeNil)
	})
}
