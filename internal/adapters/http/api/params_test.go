package api

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestListParam(t *testing.T) {
	Convey("Given a query with repeated and comma separated values", t, func() {
		q := url.Values{
			"drivers": {"VER, LEC", " ", "HAM"},
			"driver":  {"NOR,"},
		}

		Convey("Then values are split, trimmed and blanks dropped in order", func() {
			So(listParam(q, "drivers", "driver"), ShouldResemble, []string{"VER", "LEC", "HAM", "NOR"})
		})

		Convey("Then a missing name contributes nothing", func() {
			So(listParam(q, "session_year"), ShouldBeEmpty)
		})
	})
}

func TestParseYears(t *testing.T) {
	Convey("Given raw year values", t, func() {
		Convey("When all are positive integers", func() {
			years, err := parseYears([]string{"2023", "2024"})
			So(err, ShouldBeNil)
			So(years, ShouldResemble, []int{2023, 2024})
		})

		Convey("When one is not a year", func() {
			for _, raw := range []string{"abc", "0", "-2023"} {
				_, err := parseYears([]string{raw})
				So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			}
		})
	})
}

func TestParseGearQuery(t *testing.T) {
	Convey("Given gear data queries", t, func() {
		Convey("When the same driver is repeated in different case", func() {
			r := httptest.NewRequest("GET", "/api/v1/gear-data?session_name=Monaco&identifier=Q&session_year=2024&driver=lec&drivers=LEC", nil)
			q, err := parseGearQuery(r)

			Convey("Then it still names one competitor", func() {
				So(err, ShouldBeNil)
				So(q, ShouldResemble, gearQuery{year: 2024, event: "Monaco", session: "Q", driver: "LEC"})
			})
		})

		Convey("When the session is missing", func() {
			r := httptest.NewRequest("GET", "/api/v1/gear-data?session_name=Monaco&session_year=2024&driver=LEC", nil)
			_, err := parseGearQuery(r)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
		})

		Convey("When two drivers are named", func() {
			r := httptest.NewRequest("GET", "/api/v1/gear-data?session_name=Monaco&identifier=Q&session_year=2024&driver=LEC,SAI", nil)
			_, err := parseGearQuery(r)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
		})
	})
}
