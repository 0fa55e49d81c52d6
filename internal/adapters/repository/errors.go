package repository

import "errors"

// Sentinel kinds for ranked store errors.
var (
	ErrStoreUnavailable = errors.New("ranked store unavailable")
	ErrInvalidLimit     = errors.New("invalid leaderboard limit")
	ErrInvalidKey       = errors.New("invalid leaderboard key")
	ErrInvalidMember    = errors.New("invalid leaderboard member")
)
