package repository

import (
	"time"

	"github.com/okian/highscore/pkg/logger"
)

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *TreapStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithOpTimeout bounds every Redis round trip that has no earlier deadline.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithRedisLogger sets the logger used by the RedisStore.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}
