package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/highscore/internal/adapters/repository"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/internal/domain/types"
	"github.com/okian/highscore/pkg/metrics"
)

// TableQuery selects one bucket to read.
type TableQuery struct {
	Scope    model.Scope
	Period   model.Period
	GameID   string
	PlayerID string
	// Limit <= 0 means the scope's cap. Larger values are clamped to it.
	Limit int
	// At picks the bucket containing this instant. Zero means now.
	At time.Time
}

// FormatTable turns a top range into ranked rows. Rank is the position in
// the returned slice plus one. Members that do not decode are skipped.
func FormatTable(members []repository.Member) []types.Entry {
	out := make([]types.Entry, 0, len(members))
	for _, m := range members {
		ref, err := ParseMember(m.ID)
		if err != nil {
			continue
		}
		out = append(out, types.Entry{
			Rank:     len(out) + 1,
			PlayerID: ref.PlayerID,
			Score:    m.Score,
		})
	}
	return out
}

// ReadTable returns the formatted top of the bucket selected by q.
func (e *Engine) ReadTable(ctx context.Context, q TableQuery) ([]types.Entry, error) {
	start := time.Now()

	limit := e.gameLimit
	switch q.Scope {
	case model.ScopePersonal:
		limit = e.personalLimit
	case model.ScopeGame:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, q.Scope)
	}
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}

	keys, err := e.deriver.Derive(q.Scope, q.GameID, q.PlayerID, q.At)
	if err != nil {
		return nil, err
	}
	key := keys.For(q.Period)
	if key == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, q.Period)
	}

	members, err := e.store.TopRange(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	metrics.RecordTableRead(string(q.Scope), string(q.Period), float64(time.Since(start).Microseconds())/1000)
	return FormatTable(members), nil
}
