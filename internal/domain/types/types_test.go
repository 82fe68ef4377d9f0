package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/laptrace/internal/domain/telemetry"
	types "github.com/okian/laptrace/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewTelemetryPoint(t *testing.T) {
	Convey("Given a telemetry sample", t, func() {
		s := telemetry.Sample{Time: 12.5, Distance: 830, Speed: 287, RPM: 11500, Gear: 7, Throttle: 100, Brake: 0, DRS: 12}

		Convey("When converting it into an output record", func() {
			p := types.NewTelemetryPoint(s)

			Convey("Then every channel is carried over", func() {
				So(p, ShouldResemble, types.TelemetryPoint{
					Time: 12.5, Distance: 830, Speed: 287, RPM: 11500, Gear: 7, Throttle: 100, Brake: 0, DRS: 12,
				})
			})
		})
	})
}

func TestRecordFieldNames(t *testing.T) {
	Convey("Given records consumed by the dashboard", t, func() {
		Convey("When a dominance record is encoded", func() {
			raw, err := json.Marshal(types.DominanceRecord{Minisector: 3, FastestDriver: "VER_2023", TimeGainSeconds: 0.12})
			So(err, ShouldBeNil)

			var m map[string]any
			So(json.Unmarshal(raw, &m), ShouldBeNil)

			Convey("Then it uses the dashboard field names", func() {
				So(m, ShouldContainKey, "fastest_driver")
				So(m, ShouldContainKey, "time_diff")
				So(m["minisector"], ShouldEqual, 3.0)
			})
		})

		Convey("When a label loss record is encoded", func() {
			raw, err := json.Marshal(types.LabelLossRecord{
				DriverYear: "LEC_2023", MinisectorLabel: "Slow", MeanDiffToFastestSeconds: 0.05,
				Segments: 2, FastestOverallDriver: "VER", FastestOverallYear: 2023,
			})
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"DriverYear":"LEC_2023","MinisectorLabel":"Slow","Diff_to_Fastest_sec":0.05,`+
				`"Segments":2,"FastestOverallDriver":"VER","FastestOverallYear":2023}`)
		})

		Convey("When a braking point is encoded", func() {
			raw, err := json.Marshal(types.BrakingPoint{Distance: 10, ReferenceBrake: 1, DriverBrake: 0.5})
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"distance":10,"ideal_brake":1,"driver_brake":0.5}`)
		})
	})
}
