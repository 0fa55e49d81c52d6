package leaderboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/highscore/internal/adapters/repository"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
	"github.com/okian/highscore/pkg/metrics"
)

// Engine writes submissions into their six buckets and reads tables back.
// It holds no per-bucket state; every call is a round trip to the store.
type Engine struct {
	store         repository.Store
	deriver       Deriver
	personalLimit int
	gameLimit     int
	logger        logger.Logger
}

// New constructs an Engine over store.
func New(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		deriver:       NewDeriver(),
		personalLimit: DefaultPersonalLimit,
		gameLimit:     DefaultGameLimit,
		logger:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PersonalLimit returns the personal bucket cap.
func (e *Engine) PersonalLimit() int { return e.personalLimit }

// GameLimit returns the game table read cap.
func (e *Engine) GameLimit() int { return e.gameLimit }

// Keys derives the keys of one scope using the engine's calendar settings.
func (e *Engine) Keys(scope model.Scope, gameID, playerID string, ref time.Time) (Keys, error) {
	return e.deriver.Derive(scope, gameID, playerID, ref)
}

type bucket struct {
	scope  model.Scope
	period model.Period
	key    string
}

func (e *Engine) buckets(s model.Submission) ([]bucket, error) {
	personal, err := e.deriver.Derive(model.ScopePersonal, s.GameID, s.PlayerID, s.CreatedAt)
	if err != nil {
		return nil, err
	}
	game, err := e.deriver.Derive(model.ScopeGame, s.GameID, s.PlayerID, s.CreatedAt)
	if err != nil {
		return nil, err
	}

	out := make([]bucket, 0, 2*len(model.Periods))
	for _, p := range model.Periods {
		out = append(out, bucket{scope: model.ScopePersonal, period: p, key: personal.For(p)})
	}
	for _, p := range model.Periods {
		out = append(out, bucket{scope: model.ScopeGame, period: p, key: game.For(p)})
	}
	return out, nil
}

// RecordAndRank inserts a persisted submission into its personal and game
// buckets for every period, trims the personal buckets to the personal
// limit, and returns the submission's one-based rank in each bucket.
//
// Bucket writes are independent: if one fails the call fails, and writes
// that already landed stay in place.
func (e *Engine) RecordAndRank(ctx context.Context, s model.Submission) (res model.RankResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankLatency(float64(time.Since(start).Microseconds()) / 1000)
		if err != nil {
			metrics.RecordErrorByComponent("engine", "record_and_rank")
		}
	}()

	if s.ID == "" {
		return res, fmt.Errorf("%w: id", ErrMissingField)
	}
	bs, err := e.buckets(s)
	if err != nil {
		return res, err
	}
	member := MemberID(s)

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bs {
		g.Go(func() error {
			if b.scope == model.ScopePersonal {
				return e.store.UpsertAndTrim(gctx, b.key, s.Score, member, e.personalLimit)
			}
			return e.store.Upsert(gctx, b.key, s.Score, member)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordPartialWrite()
		e.logger.Warn(ctx, "bucket write failed, earlier writes may remain",
			logger.String("submission_id", s.ID),
			logger.String("game_id", s.GameID),
			logger.Error(err),
		)
		return res, fmt.Errorf("record submission %s: %w", s.ID, err)
	}

	ranks := make([]*int, len(bs))
	g, gctx = errgroup.WithContext(ctx)
	for i, b := range bs {
		g.Go(func() error {
			zero, found, err := e.store.RankOf(gctx, b.key, member)
			if err != nil {
				return err
			}
			metrics.RecordRankComputation()
			if !found {
				metrics.RecordPlacementMiss(string(b.scope), string(b.period))
				return nil
			}
			rank := int(zero) + 1
			ranks[i] = &rank
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("rank submission %s: %w", s.ID, err)
	}

	for i, b := range bs {
		if b.scope == model.ScopePersonal {
			res.Personal.Set(b.period, ranks[i])
		} else {
			res.Game.Set(b.period, ranks[i])
		}
	}

	e.logger.Debug(ctx, "submission ranked",
		logger.String("submission_id", s.ID),
		logger.Any("personal_ranks", res.Personal),
		logger.Any("game_ranks", res.Game),
	)
	return res, nil
}
