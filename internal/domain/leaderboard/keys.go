// Package leaderboard derives time-bucketed leaderboard keys, writes
// submissions into their buckets and reads formatted tables back.
package leaderboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/highscore/internal/domain/model"
)

const keyPrefix = "scoreboard"

// Keys holds the three period keys of one scope.
type Keys struct {
	Daily   string
	Weekly  string
	Monthly string
}

// For returns the key of period p.
func (k Keys) For(p model.Period) string {
	switch p {
	case model.PeriodDaily:
		return k.Daily
	case model.PeriodWeekly:
		return k.Weekly
	case model.PeriodMonthly:
		return k.Monthly
	}
	return ""
}

// ParseWeekStart accepts "monday" or "sunday".
func ParseWeekStart(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monday":
		return time.Monday, nil
	case "sunday":
		return time.Sunday, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekStart, s)
}

// Deriver maps (scope, game, player, time) to bucket keys.
type Deriver struct {
	loc       *time.Location
	weekStart time.Weekday
	now       func() time.Time
}

// NewDeriver returns a Deriver bucketing in UTC with Monday-first weeks.
func NewDeriver() Deriver {
	return Deriver{loc: time.UTC, weekStart: time.Monday, now: time.Now}
}

// DeriveKeys derives keys with the default Deriver.
func DeriveKeys(scope model.Scope, gameID, playerID string, ref time.Time) (Keys, error) {
	return NewDeriver().Derive(scope, gameID, playerID, ref)
}

// Derive returns the daily, weekly and monthly keys for one scope.
// A zero ref means now.
func (d Deriver) Derive(scope model.Scope, gameID, playerID string, ref time.Time) (Keys, error) {
	var suffix string
	switch scope {
	case model.ScopeGame:
		if gameID == "" {
			return Keys{}, fmt.Errorf("%w: game_id", ErrMissingField)
		}
		suffix = gameID
	case model.ScopePersonal:
		if gameID == "" {
			return Keys{}, fmt.Errorf("%w: game_id", ErrMissingField)
		}
		if playerID == "" {
			return Keys{}, fmt.Errorf("%w: player_id", ErrMissingField)
		}
		suffix = gameID + ":" + playerID
	default:
		return Keys{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	if ref.IsZero() {
		ref = d.now()
	}
	t := ref.In(d.loc)

	return Keys{
		Daily:   bucketKey(model.PeriodDaily, fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day()), suffix),
		Weekly:  bucketKey(model.PeriodWeekly, fmt.Sprintf("%d-%02d", t.Year(), weekNumber(t, d.weekStart)), suffix),
		Monthly: bucketKey(model.PeriodMonthly, fmt.Sprintf("%d-%d", t.Year(), int(t.Month())), suffix),
	}, nil
}

func bucketKey(p model.Period, identity, suffix string) string {
	return keyPrefix + ":" + string(p) + ":" + identity + ":" + suffix
}

// weekNumber numbers weeks within the year starting at start. Days before
// the first start weekday of the year fall in week 0, as with strftime
// %W (Monday) and %U (Sunday).
func weekNumber(t time.Time, start time.Weekday) int {
	yday := t.YearDay() - 1
	sinceStart := (int(t.Weekday()) - int(start) + 7) % 7
	return (yday + 7 - sinceStart) / 7
}
