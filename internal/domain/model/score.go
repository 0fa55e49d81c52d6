// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxScore is the largest accepted score. Ranked stores that keep scores as
// float64, such as Redis sorted sets, represent every integer up to it
// exactly.
const MaxScore int64 = 1 << 53

// Submission is a persisted score. The record store assigns ID and CreatedAt;
// everything downstream treats it as immutable.
type Submission struct {
	ID        string    `json:"id" bson:"_id"`
	PlayerID  string    `json:"player_id" bson:"player_id"`
	GameID    string    `json:"game_id" bson:"game_id"`
	Score     int64     `json:"score" bson:"score"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// NewSubmission is the caller-supplied part of a submission.
type NewSubmission struct {
	PlayerID string
	GameID   string
	Score    int64
}

// ValidationErrors maps a field name to its failure messages.
type ValidationErrors map[string][]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+" "+strings.Join(v[f], ", "))
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

// Add appends msg to the messages for field.
func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

// Validate checks presence of the identity fields and the score range.
// It returns nil when the submission is acceptable.
func (n NewSubmission) Validate() error {
	errs := ValidationErrors{}
	if strings.TrimSpace(n.PlayerID) == "" {
		errs.Add("player_id", "can't be blank")
	}
	if strings.TrimSpace(n.GameID) == "" {
		errs.Add("game_id", "can't be blank")
	}
	if n.Score < 0 {
		errs.Add("score", "must be greater than or equal to 0")
	}
	if n.Score > MaxScore {
		errs.Add("score", "must be less than or equal to "+strconv.FormatInt(MaxScore, 10))
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
