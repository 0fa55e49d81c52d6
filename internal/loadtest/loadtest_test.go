package loadtest

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/highscore/internal/adapters/http/api"
	"github.com/okian/highscore/internal/adapters/recordstore"
	"github.com/okian/highscore/internal/adapters/repository"
	service "github.com/okian/highscore/internal/app"
	"github.com/okian/highscore/internal/domain/leaderboard"
)

func intp(v int) *int { return &v }

func newServer(ctx context.Context, personal, game int) (*httptest.Server, func()) {
	records, err := recordstore.OpenBadger("")
	So(err, ShouldBeNil)
	svc := service.New(repository.NewTreapStore(ctx), records,
		service.WithWorkerCount(2),
		service.WithSystemMetricsInterval(0),
		service.WithEngineOptions(leaderboard.WithPersonalLimit(personal), leaderboard.WithGameLimit(game)),
	)
	So(svc.Start(ctx), ShouldBeNil)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	return srv, func() {
		srv.Close()
		_ = svc.Stop(ctx)
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := Config{Submissions: 200, Players: 7, Games: 3}.withDefaults()
		subs := generate(cfg, rand.New(rand.NewPCG(1, 1)))

		Convey("It produces the requested number of submissions", func() {
			So(subs, ShouldHaveLength, 200)
		})

		Convey("Players, games and request ids stay within bounds", func() {
			players := map[string]struct{}{}
			games := map[string]struct{}{}
			ids := map[string]struct{}{}
			for _, s := range subs {
				players[s.PlayerID] = struct{}{}
				games[s.GameID] = struct{}{}
				ids[s.RequestID] = struct{}{}
				So(s.Score, ShouldBeBetweenOrEqual, 0, 9999)
			}
			So(len(players), ShouldBeLessThanOrEqualTo, 7)
			So(len(games), ShouldBeLessThanOrEqualTo, 3)
			So(ids, ShouldHaveLength, 200)
		})

		Convey("expectedTop keeps the best score per game", func() {
			top := expectedTop([]Submission{
				{GameID: "a", Score: 3}, {GameID: "a", Score: 9}, {GameID: "b", Score: 1},
			})
			So(top, ShouldResemble, map[string]int64{"a": 9, "b": 1})
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given recorded submissions", t, func() {
		ranks := RankMap{Daily: intp(1), Weekly: intp(1), Monthly: intp(1)}
		recorded := []Recorded{
			{ID: "1", GameID: "g", Score: 50, PersonalRanks: ranks, GameRanks: ranks},
			{ID: "2", GameID: "g", Score: 20, GameRanks: RankMap{Daily: intp(2), Weekly: intp(2), Monthly: intp(2)}},
		}
		good := Table{GameID: "g", Entries: []Entry{{Rank: 1, Score: 50}, {Rank: 2, Score: 20}}}

		Convey("A consistent board passes", func() {
			So(verify(recorded, []Table{good}, 3), ShouldBeNil)
		})

		Convey("An unsorted board fails", func() {
			bad := Table{GameID: "g", Entries: []Entry{{Rank: 1, Score: 20}, {Rank: 2, Score: 50}}}
			So(errors.Is(verify(recorded, []Table{bad}, 3), ErrVerification), ShouldBeTrue)
		})

		Convey("Ranks with gaps fail", func() {
			bad := Table{GameID: "g", Entries: []Entry{{Rank: 1, Score: 50}, {Rank: 3, Score: 20}}}
			So(errors.Is(verify(recorded, []Table{bad}, 3), ErrVerification), ShouldBeTrue)
		})

		Convey("A top score below the best submission fails", func() {
			bad := Table{GameID: "g", Entries: []Entry{{Rank: 1, Score: 20}}}
			So(errors.Is(verify(recorded, []Table{bad}, 3), ErrVerification), ShouldBeTrue)
		})

		Convey("A personal rank past the limit fails", func() {
			recorded[0].PersonalRanks.Weekly = intp(4)
			So(errors.Is(verify(recorded, []Table{good}, 3), ErrVerification), ShouldBeTrue)
		})

		Convey("A missing game rank fails", func() {
			recorded[1].GameRanks.Monthly = nil
			So(errors.Is(verify(recorded, []Table{good}, 3), ErrVerification), ShouldBeTrue)
		})
	})
}

func TestRunAgainstService(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		srv, stop := newServer(ctx, 3, 5)
		defer stop()

		r := NewRunner(Config{
			BaseURL:       srv.URL,
			Submissions:   150,
			Players:       10,
			Games:         3,
			Workers:       4,
			PersonalLimit: 3,
		}, WithSeed(42), WithHTTPClient(srv.Client()))

		Convey("A load run submits everything and verifies", func() {
			rep, err := r.Run(ctx)
			So(err, ShouldBeNil)
			So(rep.Stats.Generated, ShouldEqual, 150)
			So(rep.Stats.Submitted, ShouldEqual, 150)
			So(rep.Stats.Successful, ShouldEqual, 150)
			So(rep.Stats.Failed, ShouldEqual, 0)
			So(rep.Boards, ShouldNotBeEmpty)
			for _, b := range rep.Boards {
				So(len(b.Entries), ShouldBeLessThanOrEqualTo, 5)
			}
		})

		Convey("Replaying a request id is reported as a duplicate", func() {
			s := Submission{RequestID: "req-1", PlayerID: "p", GameID: "g", Score: 7}
			outcome, rec, err := r.Client().Submit(ctx, s)
			So(err, ShouldBeNil)
			So(outcome, ShouldEqual, OutcomeCreated)
			So(rec.GameRanks.Daily, ShouldNotBeNil)

			outcome, _, err = r.Client().Submit(ctx, s)
			So(err, ShouldBeNil)
			So(outcome, ShouldEqual, OutcomeDuplicate)
		})

		Convey("A bad leaderboard query surfaces the status", func() {
			_, err := r.Client().Leaderboard(ctx, TableQuery{Scope: "nope", GameID: "g"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "400")
		})
	})

	Convey("Given nothing listening", t, func() {
		r := NewRunner(Config{BaseURL: "http://127.0.0.1:1"})

		Convey("Run fails the health check", func() {
			_, err := r.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

func TestRender(t *testing.T) {
	Convey("Given a leaderboard table", t, func() {
		tbl := Table{Scope: "game", Period: "daily", GameID: "some_game", Entries: []Entry{
			{Rank: 1, PlayerID: "alice", Score: 30},
			{Rank: 2, PlayerID: strings.Repeat("x", 50), Score: 10},
		}}

		Convey("RenderTable shows every row", func() {
			out := RenderTable(tbl)
			So(out, ShouldContainSubstring, "daily game leaderboard for some_game")
			So(out, ShouldContainSubstring, "alice")
			So(out, ShouldContainSubstring, "#2")
			So(out, ShouldContainSubstring, "...")
		})

		Convey("An empty table says so", func() {
			tbl.Entries = nil
			So(RenderTable(tbl), ShouldContainSubstring, "No entries")
		})

		Convey("RenderStats lists the counters", func() {
			out := RenderStats(Stats{Submitted: 10, Successful: 9, Failed: 1})
			So(out, ShouldContainSubstring, "submitted")
			So(out, ShouldContainSubstring, "failed")
		})
	})
}
