package event

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStatusOf(t *testing.T) {
	Convey("Given an event window", t, func() {
		start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
		end := time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC)

		Convey("Before the start it is upcoming", func() {
			So(statusOf(start, end, start.Add(-time.Hour)), ShouldEqual, "upcoming")
		})

		Convey("Between start and end it is running", func() {
			So(statusOf(start, end, start), ShouldEqual, "running")
			So(statusOf(start, end, start.Add(24*time.Hour)), ShouldEqual, "running")
			So(statusOf(start, end, end), ShouldEqual, "running")
		})

		Convey("After the end it is finished", func() {
			So(statusOf(start, end, end.Add(time.Minute)), ShouldEqual, "finished")
		})
	})
}
