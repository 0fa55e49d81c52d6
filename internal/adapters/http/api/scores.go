package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/highscore/internal/domain/dedupe"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
)

const maxBodyBytes = 1 << 16

const (
	msgBlank        = "can't be blank"
	msgInvalid      = "is invalid"
	msgNotANumber   = "is not a number"
	requestIDHeader = "Idempotency-Key"
)

// ScoreDependencies defines the score operations used by the handlers.
type ScoreDependencies interface {
	Submit(ctx context.Context, requestID string, in model.NewSubmission) (model.ScoreRecorded, error)
	Get(ctx context.Context, id string) (model.Submission, error)
}

// ScoresHandler handles score submission and lookup.
type ScoresHandler struct {
	deps   ScoreDependencies
	logger logger.Logger
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, l logger.Logger) *ScoresHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &ScoresHandler{deps: deps, logger: l}
}

// scoreRequest is the parsed body of POST /scores.
type scoreRequest struct {
	model.NewSubmission
	RequestID string
}

// scoreResponse is a submission together with its ranks.
type scoreResponse struct {
	ID            string        `json:"id"`
	PlayerID      string        `json:"player_id"`
	GameID        string        `json:"game_id"`
	Score         int64         `json:"score"`
	CreatedAt     time.Time     `json:"created_at"`
	PersonalRanks model.RankMap `json:"personal_ranks"`
	GameRanks     model.RankMap `json:"game_ranks"`
}

type submissionResponse struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"player_id"`
	GameID    string    `json:"game_id"`
	Score     int64     `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type ackResponse struct {
	Status string `json:"status"`
}

// parseScoreRequest decodes the body field by field so that each bad
// field is reported rather than only the first.
func parseScoreRequest(body []byte) (scoreRequest, model.ValidationErrors, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return scoreRequest{}, nil, err
	}

	var req scoreRequest
	errs := model.ValidationErrors{}

	str := func(field string, dst *string) {
		v, ok := raw[field]
		if !ok || isNull(v) {
			errs.Add(field, msgBlank)
			return
		}
		if err := json.Unmarshal(v, dst); err != nil {
			errs.Add(field, msgInvalid)
			return
		}
		if strings.TrimSpace(*dst) == "" {
			errs.Add(field, msgBlank)
		}
	}
	str("player_id", &req.PlayerID)
	str("game_id", &req.GameID)

	if v, ok := raw["score"]; !ok || isNull(v) {
		errs.Add("score", msgBlank)
		errs.Add("score", msgNotANumber)
	} else if err := decodeInteger(v, &req.Score); err != nil {
		errs.Add("score", msgInvalid)
	}

	if v, ok := raw["request_id"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &req.RequestID); err != nil {
			errs.Add("request_id", msgInvalid)
		}
	}

	if len(errs) > 0 {
		return req, errs, nil
	}
	return req, nil, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// decodeInteger accepts a JSON integer or a string holding one.
func decodeInteger(v json.RawMessage, dst *int64) error {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return err
	}
	var num json.Number
	switch t := val.(type) {
	case json.Number:
		num = t
	case string:
		num = json.Number(strings.TrimSpace(t))
	default:
		return errors.New("not an integer")
	}
	n, err := num.Int64()
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// HandlePostScore handles POST /scores requests.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req, verrs, err := parseScoreRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if verrs != nil {
		writeJSON(w, http.StatusBadRequest, verrs)
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get(requestIDHeader)
	}

	out, err := h.deps.Submit(r.Context(), req.RequestID, req.NewSubmission)
	if err != nil {
		if errors.Is(err, dedupe.ErrDuplicate) {
			writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate"})
			return
		}
		if fields, ok := validationBody(err); ok {
			writeJSON(w, http.StatusBadRequest, fields)
			return
		}
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}

	s := out.Submission
	writeJSON(w, http.StatusCreated, scoreResponse{
		ID:            s.ID,
		PlayerID:      s.PlayerID,
		GameID:        s.GameID,
		Score:         s.Score,
		CreatedAt:     s.CreatedAt,
		PersonalRanks: out.Ranks.Personal,
		GameRanks:     out.Ranks.Game,
	})
}

// HandleGetScore handles GET /scores/{id} requests.
func (h *ScoresHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_score"

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	s, err := h.deps.Get(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionResponse{
		ID:        s.ID,
		PlayerID:  s.PlayerID,
		GameID:    s.GameID,
		Score:     s.Score,
		CreatedAt: s.CreatedAt,
	})
}
