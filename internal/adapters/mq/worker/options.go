// Package worker drains the notification queue and hands each
// score-recorded event to a publisher.
package worker

import (
	"time"

	"github.com/okian/highscore/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithPublishTimeout bounds a single publish attempt.
func WithPublishTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.publishTimeout = d
		}
	}
}

// WithRetry sets how many attempts a notification gets and the pause
// between them.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(w *InMemoryWorker) {
		if attempts > 0 {
			w.attempts = attempts
		}
		if backoff >= 0 {
			w.backoff = backoff
		}
	}
}
