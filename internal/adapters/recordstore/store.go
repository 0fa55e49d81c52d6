// Package recordstore persists score submissions. It is the system of
// record; ranked stores only hold derived bucket data.
package recordstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
)

// Store creates and fetches submissions.
type Store interface {
	// Create validates n, assigns an id and creation time, and persists it.
	// Validation failures wrap both ErrInvalidSubmission and the
	// model.ValidationErrors describing each field.
	Create(ctx context.Context, n model.NewSubmission) (model.Submission, error)

	// Get returns the submission with id or ErrNotFound.
	Get(ctx context.Context, id string) (model.Submission, error)

	// Close releases the backend.
	Close() error
}

// Option applies a configuration option to a record store.
type Option func(*storeOptions)

type storeOptions struct {
	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

func defaultOptions() storeOptions {
	return storeOptions{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.NewNop(),
	}
}

// WithClock replaces time.Now when stamping created_at.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *storeOptions) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// stamp turns validated input into a submission. created_at is kept at
// millisecond precision so every backend round-trips it exactly.
func (o storeOptions) stamp(n model.NewSubmission) (model.Submission, error) {
	if err := n.Validate(); err != nil {
		return model.Submission{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	return model.Submission{
		ID:        o.newID(),
		PlayerID:  n.PlayerID,
		GameID:    n.GameID,
		Score:     n.Score,
		CreatedAt: o.now().UTC().Truncate(time.Millisecond),
	}, nil
}
