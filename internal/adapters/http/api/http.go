// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/highscore/internal/adapters/recordstore"
	"github.com/okian/highscore/internal/adapters/repository"
	"github.com/okian/highscore/internal/domain/leaderboard"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/internal/domain/types"
	"github.com/okian/highscore/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ScoreDependencies
	LeaderboardDependencies
	StatsProvider
	Pinger
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	logger             logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger used for request logs.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.scoresHandler = NewScoresHandler(deps, s.logger)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	wrap := func(h http.HandlerFunc, endpoint string) http.Handler {
		return LoggingMiddleware(s.logger, MetricsMiddleware(h, endpoint))
	}

	mux.Handle("GET /healthz", wrap(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", MetricsHandler())
	mux.Handle("GET /stats", wrap(s.statsHandler.HandleStats, "stats"))
	mux.Handle("POST /scores", wrap(s.scoresHandler.HandlePostScore, "scores"))
	mux.Handle("POST /score", wrap(s.scoresHandler.HandlePostScore, "scores"))
	mux.Handle("GET /scores/{id}", wrap(s.scoresHandler.HandleGetScore, "score"))
	mux.Handle("GET /leaderboard", wrap(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an upstream error to a status code. Server-side
// failures are logged and answered without internal detail.
func writeFailure(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, leaderboard.ErrMissingField),
		errors.Is(err, leaderboard.ErrInvalidScope),
		errors.Is(err, leaderboard.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrStoreUnavailable),
		errors.Is(err, recordstore.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		log.Error(ctx, "store unavailable", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}

// validationBody renders field errors in the {field: [messages]} shape.
func validationBody(err error) (model.ValidationErrors, bool) {
	var verrs model.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}
