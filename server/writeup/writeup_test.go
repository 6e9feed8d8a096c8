package writeup

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"ctfhub/server/scoring"
)

func TestRankHot(t *testing.T) {
	Convey("Given more writeups than the page limit", t, func() {
		now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

		// 50条最近的低赞题解 + 1条一周前的高赞题解
		var writeups []Writeup
		for i := 0; i < 50; i++ {
			created := now.Add(-time.Duration(i+1) * time.Hour)
			writeups = append(writeups, Writeup{
				ID:        int64(i + 2),
				Title:     fmt.Sprintf("recent-%d", i),
				Upvotes:   1,
				HotScore:  scoring.HotScore(1, created, now),
				CreatedAt: created.Format("2006-01-02 15:04:05"),
			})
		}
		oldCreated := now.Add(-7 * 24 * time.Hour)
		hottest := Writeup{
			ID:        1,
			Title:     "old-but-hot",
			Upvotes:   100,
			HotScore:  scoring.HotScore(100, oldCreated, now),
			CreatedAt: oldCreated.Format("2006-01-02 15:04:05"),
		}
		writeups = append(writeups, hottest)

		Convey("When ranking with limit 50", func() {
			ranked := rankHot(writeups, 50)

			Convey("The result is truncated to the limit", func() {
				So(len(ranked), ShouldEqual, 50)
			})

			Convey("The old high-upvote writeup survives the cut and leads", func() {
				// 100赞一周前：(100-1)/(168+2)^1.5 ≈ 0.0447，高于任何1赞近期条目（≤0）
				So(ranked[0].ID, ShouldEqual, hottest.ID)
			})

			Convey("Scores are in descending order", func() {
				for i := 1; i < len(ranked); i++ {
					So(ranked[i-1].HotScore, ShouldBeGreaterThanOrEqualTo, ranked[i].HotScore)
				}
			})
		})

		Convey("When the candidate set is within the limit", func() {
			ranked := rankHot(writeups[:10], 50)
			So(len(ranked), ShouldEqual, 10)
		})
	})
}
