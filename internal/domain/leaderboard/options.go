package leaderboard

import (
	"time"

	"github.com/okian/highscore/pkg/logger"
)

// Default caps applied when no option overrides them.
const (
	DefaultPersonalLimit = 10
	DefaultGameLimit     = 10
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPersonalLimit caps every personal bucket at n members.
func WithPersonalLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.personalLimit = n
		}
	}
}

// WithGameLimit caps game table reads at n rows.
func WithGameLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.gameLimit = n
		}
	}
}

// WithLocation sets the time zone buckets are cut in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.deriver.loc = loc
		}
	}
}

// WithWeekStart sets the first day of a weekly bucket.
func WithWeekStart(day time.Weekday) Option {
	return func(e *Engine) {
		if day == time.Monday || day == time.Sunday {
			e.deriver.weekStart = day
		}
	}
}

// WithClock replaces time.Now for reads without an explicit time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.deriver.now = now
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
