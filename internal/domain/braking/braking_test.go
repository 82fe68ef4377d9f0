package braking_test

import (
	"math"
	"testing"

	"github.com/okian/laptrace/internal/domain/braking"
	"github.com/okian/laptrace/internal/domain/telemetry"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGradient(t *testing.T) {
	Convey("Given a speed trace", t, func() {
		So(braking.Gradient([]float64{1, 2, 4, 7, 11}), ShouldResemble, []float64{1, 1.5, 2.5, 3.5, 4})
		So(braking.Gradient([]float64{5}), ShouldResemble, []float64{0})
		So(braking.Gradient(nil), ShouldBeEmpty)
	})
}

func TestIdealBrake(t *testing.T) {
	Convey("Given a lap decelerating into a corner", t, func() {
		speeds := []float64{300, 300, 297, 290, 280, 279, 279}
		got := braking.IdealBrake(speeds, braking.DefaultDecelThreshold)
		// gradients: 0, -1.5, -5, -8.5, -5.5, -0.5, 0
		So(got, ShouldResemble, []float64{0, 0, 1, 1, 1, 0, 0})
	})
}

func TestDistance(t *testing.T) {
	Convey("Given samples with the brake pressed in the middle", t, func() {
		samples := []telemetry.Sample{
			{Distance: 0, Brake: 1},
			{Distance: 10, Brake: 0},
			{Distance: 25, Brake: 1},
			{Distance: 45, Brake: 1},
			{Distance: 50, Brake: 0.4},
		}
		So(braking.Distance(samples), ShouldEqual, 35)
		So(braking.Distance(samples[:1]), ShouldEqual, 0)
	})

	Convey("Given a braking sample with an unreadable distance", t, func() {
		samples := []telemetry.Sample{
			{Distance: 0, Brake: 1},
			{Distance: math.NaN(), Brake: 1},
			{Distance: 30, Brake: 1},
			{Distance: 40, Brake: 1},
		}
		So(braking.Distance(samples), ShouldEqual, 10)
	})
}

func TestCompare(t *testing.T) {
	Convey("Given a reference lap and a shorter competitor lap", t, func() {
		ref := []telemetry.Sample{
			{Distance: 0, Speed: 300},
			{Distance: 10, Speed: 295},
			{Distance: 20, Speed: 280},
			{Distance: 30, Speed: 280},
		}
		comp := []telemetry.Sample{
			{Distance: 5, Brake: 0},
			{Distance: 15, Brake: 1},
			{Distance: 25, Brake: 1},
		}

		pts, err := braking.Compare(ref, comp, braking.DefaultDecelThreshold)
		So(err, ShouldBeNil)
		So(len(pts), ShouldEqual, 4)

		Convey("Then the competitor brake is interpolated and zero outside its range", func() {
			So(pts[0].Competitor, ShouldEqual, 0)
			So(pts[1].Competitor, ShouldAlmostEqual, 0.5)
			So(pts[2].Competitor, ShouldAlmostEqual, 1)
			So(pts[3].Competitor, ShouldEqual, 0)
		})

		Convey("And the reference carries the ideal brake trace", func() {
			So(pts[0].Reference, ShouldEqual, 1)
			So(pts[1].Reference, ShouldEqual, 1)
			So(pts[3].Reference, ShouldEqual, 0)
			So(pts[2].Distance, ShouldEqual, 20)
		})
	})
}
