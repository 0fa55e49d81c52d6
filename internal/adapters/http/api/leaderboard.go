package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/highscore/internal/domain/leaderboard"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, q leaderboard.TableQuery) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps   LeaderboardDependencies
	logger logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, l logger.Logger) *LeaderboardHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &LeaderboardHandler{deps: deps, logger: l}
}

type leaderboardResponse struct {
	Scope    model.Scope  `json:"scope"`
	Period   model.Period `json:"period"`
	GameID   string       `json:"game_id"`
	PlayerID string       `json:"player_id,omitempty"`
	Entries  []Entry      `json:"entries"`
}

// parseTableQuery reads scope, period, game_id, player_id, limit and at.
// Scope defaults to game and period to daily.
func parseTableQuery(r *http.Request) (leaderboard.TableQuery, error) {
	q := r.URL.Query()
	tq := leaderboard.TableQuery{
		Scope:    model.ScopeGame,
		Period:   model.PeriodDaily,
		GameID:   q.Get("game_id"),
		PlayerID: q.Get("player_id"),
	}

	if v := q.Get("scope"); v != "" {
		scope, err := model.ParseScope(v)
		if err != nil {
			return tq, fmt.Errorf("%w: %w", leaderboard.ErrInvalidScope, err)
		}
		tq.Scope = scope
	}
	if v := q.Get("period"); v != "" {
		period, err := model.ParsePeriod(v)
		if err != nil {
			return tq, fmt.Errorf("%w: %w", leaderboard.ErrInvalidPeriod, err)
		}
		tq.Period = period
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return tq, fmt.Errorf("limit must be a positive integer, got %q", v)
		}
		tq.Limit = n
	}
	if v := q.Get("at"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return tq, fmt.Errorf("at must be RFC3339: %w", err)
		}
		tq.At = at
	}
	return tq, nil
}

// HandleGetLeaderboard handles GET /leaderboard requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"

	tq, err := parseTableQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	entries, err := h.deps.Leaderboard(r.Context(), tq)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Scope:    tq.Scope,
		Period:   tq.Period,
		GameID:   tq.GameID,
		PlayerID: tq.PlayerID,
		Entries:  entries,
	})
}
