package loadtest

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// fetchBoards reads the daily game leaderboard of every game present in
// recorded, concurrently.
func (r *Runner) fetchBoards(ctx context.Context, recorded []Recorded) ([]Table, error) {
	seen := make(map[string]struct{})
	var games []string
	for _, rec := range recorded {
		if _, ok := seen[rec.GameID]; !ok {
			seen[rec.GameID] = struct{}{}
			games = append(games, rec.GameID)
		}
	}
	sort.Strings(games)

	boards := make([]Table, len(games))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, game := range games {
		g.Go(func() error {
			t, err := r.client.Leaderboard(gctx, TableQuery{Scope: "game", Period: "daily", GameID: game})
			if err != nil {
				return fmt.Errorf("game %s: %w", game, err)
			}
			boards[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return boards, nil
}

// verify checks every board against the submissions that were created:
// entries are ordered by score with positional ranks, the first entry is at
// least the best created score of its game, and every returned rank is
// within bounds.
func verify(recorded []Recorded, boards []Table, personalLimit int) error {
	for _, rec := range recorded {
		if err := checkRanks(rec, personalLimit); err != nil {
			return err
		}
	}

	subs := make([]Submission, 0, len(recorded))
	for _, rec := range recorded {
		subs = append(subs, Submission{GameID: rec.GameID, Score: rec.Score})
	}
	top := expectedTop(subs)

	for _, b := range boards {
		if err := checkBoard(b); err != nil {
			return err
		}
		want, ok := top[b.GameID]
		if !ok {
			continue
		}
		if len(b.Entries) == 0 {
			return fmt.Errorf("%w: game %s has an empty daily board", ErrVerification, b.GameID)
		}
		if b.Entries[0].Score < want {
			return fmt.Errorf("%w: game %s top score %d is below submitted %d",
				ErrVerification, b.GameID, b.Entries[0].Score, want)
		}
	}
	return nil
}

// checkBoard verifies ordering and rank numbering of one table.
func checkBoard(b Table) error {
	for i, e := range b.Entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: game %s entry %d has rank %d", ErrVerification, b.GameID, i, e.Rank)
		}
		if i > 0 && e.Score > b.Entries[i-1].Score {
			return fmt.Errorf("%w: game %s not sorted at rank %d", ErrVerification, b.GameID, e.Rank)
		}
	}
	return nil
}

// checkRanks verifies the ranks returned with a created submission.
func checkRanks(rec Recorded, personalLimit int) error {
	for _, p := range []*int{rec.PersonalRanks.Daily, rec.PersonalRanks.Weekly, rec.PersonalRanks.Monthly} {
		if p != nil && (*p < 1 || *p > personalLimit) {
			return fmt.Errorf("%w: submission %s has personal rank %d outside 1..%d",
				ErrVerification, rec.ID, *p, personalLimit)
		}
	}
	for _, g := range []*int{rec.GameRanks.Daily, rec.GameRanks.Weekly, rec.GameRanks.Monthly} {
		if g == nil || *g < 1 {
			return fmt.Errorf("%w: submission %s is missing a game rank", ErrVerification, rec.ID)
		}
	}
	return nil
}
