package scoring_test

import (
	"math/rand"
	"testing"
	"time"

	"ctfhub/server/scoring"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHotScore(t *testing.T) {
	Convey("Given a fixed reference time", t, func() {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		Convey("When upvotes are fixed above one", func() {
			Convey("Then the score strictly decreases as the item ages", func() {
				rng := rand.New(rand.NewSource(1))
				for i := 0; i < 200; i++ {
					upvotes := 2 + rng.Intn(500)
					ageA := time.Duration(rng.Intn(720)) * time.Minute
					ageB := ageA + time.Duration(1+rng.Intn(720))*time.Minute
					younger := scoring.HotScore(upvotes, now.Add(-ageA), now)
					older := scoring.HotScore(upvotes, now.Add(-ageB), now)
					So(older, ShouldBeLessThan, younger)
				}
			})
		})

		Convey("When the creation time is fixed", func() {
			createdAt := now.Add(-3 * time.Hour)

			Convey("Then the score strictly increases with upvotes", func() {
				prev := scoring.HotScore(0, createdAt, now)
				for u := 1; u <= 100; u++ {
					cur := scoring.HotScore(u, createdAt, now)
					So(cur, ShouldBeGreaterThan, prev)
					prev = cur
				}
			})
		})

		Convey("When an item has zero upvotes", func() {
			Convey("Then the score is negative", func() {
				So(scoring.HotScore(0, now.Add(-time.Hour), now), ShouldBeLessThan, 0)
			})
		})

		Convey("When an item is brand new with one upvote", func() {
			Convey("Then the score is exactly zero", func() {
				So(scoring.HotScore(1, now, now), ShouldEqual, 0)
			})
		})

		Convey("When the creation time is in the near future", func() {
			Convey("Then the score is still finite", func() {
				score := scoring.HotScore(10, now.Add(time.Hour), now)
				So(score, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When checking rounding", func() {
			Convey("Then the result carries at most six decimal places", func() {
				score := scoring.HotScore(7, now.Add(-5*time.Hour), now)
				So(score*1e6, ShouldEqual, float64(int64(score*1e6)))
			})
		})
	})
}

func TestContributionScore(t *testing.T) {
	Convey("Given the fixed weights", t, func() {
		Convey("When computing a known example", func() {
			score, err := scoring.ContributionScore(scoring.Stats{
				WriteupCount:     3,
				TotalUpvotes:     5,
				CTFParticipation: 2,
			})
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 260)
		})

		Convey("When computing random stats", func() {
			Convey("Then the score is exactly linear in the counters", func() {
				rng := rand.New(rand.NewSource(2))
				for i := 0; i < 200; i++ {
					w, u, c := rng.Intn(100), rng.Intn(1000), rng.Intn(50)
					score, err := scoring.ContributionScore(scoring.Stats{
						WriteupCount:     w,
						TotalUpvotes:     u,
						CTFParticipation: c,
					})
					So(err, ShouldBeNil)
					So(score, ShouldEqual, 50*w+10*u+30*c)
				}
			})
		})

		Convey("When a counter is negative", func() {
			_, err := scoring.ContributionScore(scoring.Stats{WriteupCount: -1})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTitleLadder(t *testing.T) {
	Convey("Given the ten-tier title ladder", t, func() {
		Convey("When walking scores upward", func() {
			Convey("Then every score maps to exactly one title and tiers never regress", func() {
				prevRank := scoring.TitleRank(scoring.TitleFor(0))
				for s := 0; s <= 3000; s++ {
					rank := scoring.TitleRank(scoring.TitleFor(s))
					So(rank, ShouldBeLessThanOrEqualTo, prevRank)
					prevRank = rank
				}
			})
		})

		Convey("When checking the threshold boundaries", func() {
			So(scoring.TitleFor(0), ShouldEqual, "Initiate")
			So(scoring.TitleFor(49), ShouldEqual, "Initiate")
			So(scoring.TitleFor(50), ShouldEqual, "Apprentice")
			So(scoring.TitleFor(150), ShouldEqual, "Novice")
			So(scoring.TitleFor(300), ShouldEqual, "Proficient")
			So(scoring.TitleFor(500), ShouldEqual, "Intermediate")
			So(scoring.TitleFor(800), ShouldEqual, "Skilled")
			So(scoring.TitleFor(1200), ShouldEqual, "Expert")
			So(scoring.TitleFor(1600), ShouldEqual, "Advanced")
			So(scoring.TitleFor(2000), ShouldEqual, "Elite")
			So(scoring.TitleFor(2499), ShouldEqual, "Elite")
			So(scoring.TitleFor(2500), ShouldEqual, "Legendary")
			So(scoring.TitleFor(99999), ShouldEqual, "Legendary")
		})
	})
}

func TestRank(t *testing.T) {
	Convey("Given a set of contributors", t, func() {
		contributors := []scoring.Contributor{
			{UserID: 7, Score: 300},
			{UserID: 3, Score: 900},
			{UserID: 5, Score: 300},
			{UserID: 1, Score: 120},
		}

		Convey("When ranks are computed", func() {
			ranked := scoring.Rank(contributors)

			Convey("Then ordering is by descending score", func() {
				So(len(ranked), ShouldEqual, 4)
				So(ranked[0].UserID, ShouldEqual, 3)
				So(ranked[0].Rank, ShouldEqual, 1)
				So(ranked[3].UserID, ShouldEqual, 1)
				So(ranked[3].Rank, ShouldEqual, 4)
			})

			Convey("And ties break by ascending user id", func() {
				So(ranked[1].UserID, ShouldEqual, 5)
				So(ranked[1].Rank, ShouldEqual, 2)
				So(ranked[2].UserID, ShouldEqual, 7)
				So(ranked[2].Rank, ShouldEqual, 3)
			})

			Convey("And the input slice is left untouched", func() {
				So(contributors[0].UserID, ShouldEqual, 7)
			})
		})

		Convey("When the set is empty", func() {
			So(scoring.Rank(nil), ShouldBeEmpty)
		})
	})
}
