package leaderboard

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildExportSheet(t *testing.T) {
	Convey("Given ranked leaderboard entries", t, func() {
		entries := []Entry{
			{Rank: 1, Username: "alice", DisplayName: "Alice", Title: "传奇", Score: 2600,
				WriteupCount: 40, TotalUpvotes: 50, CTFParticipation: 2},
			{Rank: 2, Username: "bob", DisplayName: "Bob", Title: "学徒", Score: 60,
				WriteupCount: 1, TotalUpvotes: 1, CTFParticipation: 0},
		}

		f := buildExportSheet(entries)
		defer f.Close()

		Convey("The header row is written", func() {
			v, err := f.GetCellValue("Sheet1", "A1")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "排名")
			v, _ = f.GetCellValue("Sheet1", "E1")
			So(v, ShouldEqual, "贡献分")
		})

		Convey("Entries fill rows in rank order", func() {
			rank, _ := f.GetCellValue("Sheet1", "A2")
			So(rank, ShouldEqual, "1")
			username, _ := f.GetCellValue("Sheet1", "B2")
			So(username, ShouldEqual, "alice")
			score, _ := f.GetCellValue("Sheet1", "E2")
			So(score, ShouldEqual, "2600")

			rank, _ = f.GetCellValue("Sheet1", "A3")
			So(rank, ShouldEqual, "2")
			username, _ = f.GetCellValue("Sheet1", "B3")
			So(username, ShouldEqual, "bob")
		})

		Convey("No stray row follows the last entry", func() {
			v, _ := f.GetCellValue("Sheet1", "A4")
			So(v, ShouldBeEmpty)
		})
	})
}
