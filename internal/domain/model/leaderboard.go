package model

import (
	"fmt"
	"strings"
)

// Scope selects which leaderboard family a bucket belongs to.
type Scope string

// Supported scopes.
const (
	ScopePersonal Scope = "personal"
	ScopeGame     Scope = "game"
)

// Period is the time window of a bucket.
type Period string

// Supported periods.
const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists every period in display order.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// ParseScope converts s into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopePersonal:
		return ScopePersonal, nil
	case ScopeGame:
		return ScopeGame, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// ParsePeriod converts s into a Period.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodDaily:
		return PeriodDaily, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// RankMap holds a one-based rank per period. A nil rank means the
// submission did not place in that bucket.
type RankMap struct {
	Daily   *int `json:"daily"`
	Weekly  *int `json:"weekly"`
	Monthly *int `json:"monthly"`
}

// Get returns the rank recorded for p.
func (r RankMap) Get(p Period) *int {
	switch p {
	case PeriodDaily:
		return r.Daily
	case PeriodWeekly:
		return r.Weekly
	case PeriodMonthly:
		return r.Monthly
	}
	return nil
}

// Set stores rank for p.
func (r *RankMap) Set(p Period, rank *int) {
	switch p {
	case PeriodDaily:
		r.Daily = rank
	case PeriodWeekly:
		r.Weekly = rank
	case PeriodMonthly:
		r.Monthly = rank
	}
}

// RankResult is the outcome of ranking one submission.
type RankResult struct {
	Personal RankMap `json:"personal_ranks"`
	Game     RankMap `json:"game_ranks"`
}

// ScoreRecorded is published after a submission has been persisted and ranked.
type ScoreRecorded struct {
	Submission Submission `json:"submission"`
	Ranks      RankResult `json:"ranks"`
}
