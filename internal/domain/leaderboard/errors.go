package leaderboard

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidScope     = errors.New("invalid leaderboard scope")
	ErrInvalidPeriod    = errors.New("invalid leaderboard period")
	ErrMalformedMember  = errors.New("malformed leaderboard member")
	ErrInvalidWeekStart = errors.New("week start must be monday or sunday")
)
