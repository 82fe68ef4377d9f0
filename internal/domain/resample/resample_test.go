package resample_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/okian/laptrace/internal/domain/resample"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLinear(t *testing.T) {
	Convey("Given a channel sampled between 10 m and 30 m", t, func() {
		dist := []float64{10, 20, 20, 30}
		val := []float64{0, 1, 5, 0}

		Convey("When the grid extends past both ends", func() {
			got, err := resample.Linear(dist, val, []float64{0, 10, 15, 20, 25, 30, 35}, 0)
			So(err, ShouldBeNil)

			Convey("Then outside values are the fill and inside values interpolate", func() {
				want := []float64{0, 0, 0.5, 1, 0.5, 0, 0}
				So(cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)), ShouldBeEmpty)
			})
		})

		Convey("When the fill is non-zero", func() {
			got, err := resample.Linear(dist, val, []float64{5, 40}, -1)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []float64{-1, -1})
		})
	})

	Convey("Given degenerate sources", t, func() {
		got, err := resample.Linear(nil, nil, []float64{1, 2}, 7)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, []float64{7, 7})

		got, err = resample.Linear([]float64{5}, []float64{3}, []float64{5, 6}, 0)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, []float64{3, 0})

		_, err = resample.Linear([]float64{1, 2}, []float64{1}, nil, 0)
		So(errors.Is(err, resample.ErrMismatchedLengths), ShouldBeTrue)
	})
}
