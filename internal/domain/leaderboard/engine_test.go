package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/highscore/internal/adapters/repository"
	"github.com/okian/highscore/internal/domain/model"
)

// countingStore records calls and optionally fails writes to one key.
type countingStore struct {
	repository.Store
	calls   atomic.Int64
	failKey string
}

func (c *countingStore) Upsert(ctx context.Context, key string, score int64, member string) error {
	c.calls.Add(1)
	if key == c.failKey {
		return fmt.Errorf("%w: connection reset", repository.ErrStoreUnavailable)
	}
	return c.Store.Upsert(ctx, key, score, member)
}

func (c *countingStore) UpsertAndTrim(ctx context.Context, key string, score int64, member string, n int) error {
	c.calls.Add(1)
	if key == c.failKey {
		return fmt.Errorf("%w: connection reset", repository.ErrStoreUnavailable)
	}
	return c.Store.UpsertAndTrim(ctx, key, score, member, n)
}

func (c *countingStore) RankOf(ctx context.Context, key, member string) (int64, bool, error) {
	c.calls.Add(1)
	return c.Store.RankOf(ctx, key, member)
}

var base = time.Date(2001, 2, 3, 12, 0, 0, 0, time.UTC)

func submission(id, player string, score int64, offset time.Duration) model.Submission {
	return model.Submission{ID: id, PlayerID: player, GameID: "g1", Score: score, CreatedAt: base.Add(offset)}
}

func rankValues(r model.RankMap) []any {
	out := make([]any, 0, 3)
	for _, p := range model.Periods {
		if v := r.Get(p); v != nil {
			out = append(out, *v)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

func TestEngine_RecordAndRank(t *testing.T) {
	Convey("Given an engine over an in-memory store", t, func() {
		ctx := context.Background()
		store := repository.NewTreapStore(ctx)
		defer store.Close()
		engine := New(store, WithPersonalLimit(3), WithGameLimit(5))

		Convey("When three players score 11, 12 and 13 and a fourth scores 10", func() {
			for i, sc := range []int64{11, 12, 13} {
				_, err := engine.RecordAndRank(ctx, submission(fmt.Sprintf("s%d", i), fmt.Sprintf("p%d", i), sc, time.Duration(i)*time.Second))
				So(err, ShouldBeNil)
			}
			res, err := engine.RecordAndRank(ctx, submission("s4", "p4", 10, 4*time.Second))

			Convey("Then the fourth submission should rank 4 in every game period", func() {
				So(err, ShouldBeNil)
				So(rankValues(res.Game), ShouldResemble, []any{4, 4, 4})
			})

			Convey("And it should lead its own personal buckets", func() {
				So(rankValues(res.Personal), ShouldResemble, []any{1, 1, 1})
			})
		})

		Convey("When a personal bucket is full of higher scores", func() {
			for i := 0; i < 3; i++ {
				_, err := engine.RecordAndRank(ctx, submission(fmt.Sprintf("hi%d", i), "p1", int64(100+i), time.Duration(i)*time.Minute))
				So(err, ShouldBeNil)
			}
			res, err := engine.RecordAndRank(ctx, submission("low", "p1", 1, time.Hour))

			Convey("Then the lowest submission should have no personal rank", func() {
				So(err, ShouldBeNil)
				So(rankValues(res.Personal), ShouldResemble, []any{nil, nil, nil})
			})

			Convey("And the game buckets should still rank it", func() {
				So(rankValues(res.Game), ShouldResemble, []any{4, 4, 4})
			})
		})

		Convey("When a player submits more scores than the personal limit", func() {
			scores := []int64{5, 50, 20, 70, 10, 60}
			for i, sc := range scores {
				_, err := engine.RecordAndRank(ctx, submission(fmt.Sprintf("s%d", i), "p1", sc, time.Duration(i)*time.Minute))
				So(err, ShouldBeNil)
			}

			Convey("Then each personal bucket should keep exactly the top three", func() {
				keys, err := engine.Keys(model.ScopePersonal, "g1", "p1", base)
				So(err, ShouldBeNil)
				for _, p := range model.Periods {
					n, err := store.Count(ctx, keys.For(p))
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 3)
				}

				rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopePersonal, Period: model.PeriodWeekly, GameID: "g1", PlayerID: "p1", At: base})
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rows[0].Score, ShouldEqual, 70)
				So(rows[1].Score, ShouldEqual, 60)
				So(rows[2].Score, ShouldEqual, 50)
			})

			Convey("And the game buckets should keep all six", func() {
				keys, _ := engine.Keys(model.ScopeGame, "g1", "", base)
				n, err := store.Count(ctx, keys.Daily)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 6)
			})
		})

		Convey("When two players post the same score", func() {
			_, err := engine.RecordAndRank(ctx, submission("a", "alice", 42, 0))
			So(err, ShouldBeNil)
			_, err = engine.RecordAndRank(ctx, submission("b", "bob", 42, time.Second))
			So(err, ShouldBeNil)

			Convey("Then both should appear in the game table", func() {
				rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: model.PeriodDaily, GameID: "g1", At: base})
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
				players := []string{rows[0].PlayerID, rows[1].PlayerID}
				So(players, ShouldContain, "alice")
				So(players, ShouldContain, "bob")
				So(rows[0].Rank, ShouldEqual, 1)
				So(rows[1].Rank, ShouldEqual, 2)
			})
		})

		Convey("When one player scores twice in the same window", func() {
			_, err := engine.RecordAndRank(ctx, submission("a", "alice", 10, 0))
			So(err, ShouldBeNil)
			res, err := engine.RecordAndRank(ctx, submission("b", "alice", 10, 0))

			Convey("Then both submissions should occupy separate slots", func() {
				So(err, ShouldBeNil)
				So(res.Game.Daily, ShouldNotBeNil)
				keys, _ := engine.Keys(model.ScopeGame, "g1", "", base)
				n, _ := store.Count(ctx, keys.Daily)
				So(n, ShouldEqual, 2)
			})
		})
	})
}

func TestEngine_Failures(t *testing.T) {
	Convey("Given an engine over an instrumented store", t, func() {
		ctx := context.Background()
		inner := repository.NewTreapStore(ctx)
		defer inner.Close()
		store := &countingStore{Store: inner}
		engine := New(store, WithPersonalLimit(3))

		Convey("When the submission has no game id", func() {
			s := submission("s1", "p1", 10, 0)
			s.GameID = ""
			_, err := engine.RecordAndRank(ctx, s)

			Convey("Then MissingField should be returned without touching the store", func() {
				So(errors.Is(err, ErrMissingField), ShouldBeTrue)
				So(store.calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the submission has no player id", func() {
			s := submission("s1", "", 10, 0)
			_, err := engine.RecordAndRank(ctx, s)

			So(errors.Is(err, ErrMissingField), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "player_id")
			So(store.calls.Load(), ShouldEqual, 0)
		})

		Convey("When one bucket write fails", func() {
			keys, _ := engine.Keys(model.ScopeGame, "g1", "", base)
			store.failKey = keys.Monthly
			_, err := engine.RecordAndRank(ctx, submission("s1", "p1", 10, 0))

			Convey("Then the whole call should fail with the store error", func() {
				So(errors.Is(err, repository.ErrStoreUnavailable), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "s1")
			})
		})

		Convey("When the caller's context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := engine.RecordAndRank(cctx, submission("s1", "p1", 10, 0))

			So(errors.Is(err, repository.ErrStoreUnavailable), ShouldBeTrue)
		})
	})
}

func TestEngine_ReadTable(t *testing.T) {
	Convey("Given an engine with a personal limit of 2 and a game limit of 4", t, func() {
		ctx := context.Background()
		store := repository.NewTreapStore(ctx)
		defer store.Close()
		engine := New(store,
			WithPersonalLimit(2),
			WithGameLimit(4),
			WithClock(func() time.Time { return base }),
		)
		for i := 0; i < 6; i++ {
			_, err := engine.RecordAndRank(ctx, submission(fmt.Sprintf("s%d", i), fmt.Sprintf("p%d", i), int64(i), time.Duration(i)*time.Second))
			So(err, ShouldBeNil)
		}

		Convey("When reading a bucket that was never written", func() {
			rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: model.PeriodDaily, GameID: "other"})

			Convey("Then an empty table should be returned", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
			})
		})

		Convey("When the limit is omitted", func() {
			rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: model.PeriodMonthly, GameID: "g1"})

			Convey("Then the game limit should apply", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 4)
				So(rows[0].PlayerID, ShouldEqual, "p5")
				So(rows[3].Rank, ShouldEqual, 4)
			})
		})

		Convey("When the limit exceeds the cap", func() {
			rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: model.PeriodWeekly, GameID: "g1", Limit: 100})

			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 4)
		})

		Convey("When a smaller limit is requested", func() {
			rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: model.PeriodWeekly, GameID: "g1", Limit: 2})

			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
		})

		Convey("When reading a different day", func() {
			rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: model.PeriodDaily, GameID: "g1", At: base.AddDate(0, 0, 1)})

			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})

		Convey("When the query is invalid", func() {
			_, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopePersonal, Period: model.PeriodDaily, GameID: "g1"})
			So(errors.Is(err, ErrMissingField), ShouldBeTrue)

			_, err = engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: "hourly", GameID: "g1"})
			So(errors.Is(err, ErrInvalidPeriod), ShouldBeTrue)

			_, err = engine.ReadTable(ctx, TableQuery{Scope: "team", Period: model.PeriodDaily, GameID: "g1"})
			So(errors.Is(err, ErrInvalidScope), ShouldBeTrue)
		})
	})
}

func TestEngine_SubmissionIDWithColon(t *testing.T) {
	Convey("Given a submission whose id contains ':'", t, func() {
		ctx := context.Background()
		store := repository.NewTreapStore(ctx)
		defer store.Close()
		engine := New(store, WithClock(func() time.Time { return base }))

		res, err := engine.RecordAndRank(ctx, submission("64a:1", "alice", 5, 0))
		So(err, ShouldBeNil)
		So(*res.Game.Daily, ShouldEqual, 1)

		Convey("Then the table should report the submitting player", func() {
			rows, err := engine.ReadTable(ctx, TableQuery{Scope: model.ScopeGame, Period: model.PeriodDaily, GameID: "g1"})
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].PlayerID, ShouldEqual, "alice")
			So(rows[0].Score, ShouldEqual, 5)
		})
	})
}
