// Package repository defines the ranked store contract and its
// in-process and Redis implementations.
package repository

import "context"

// Member is one entry of a ranked set.
type Member struct {
	ID    string
	Score int64
}

// Store is a keyed collection of ranked sets ordered by score descending.
// Ties are ordered by member id descending, the same order Redis uses for
// reverse ranges. Scores are exact only up to model.MaxScore (2^53), the
// float64 limit of Redis. Transport failures and expired deadlines are
// reported as ErrStoreUnavailable.
type Store interface {
	// Upsert inserts member into key or replaces its score.
	Upsert(ctx context.Context, key string, score int64, member string) error

	// UpsertAndTrim upserts member and then keeps only the top n members
	// of key. Both steps are applied as one unit.
	UpsertAndTrim(ctx context.Context, key string, score int64, member string, n int) error

	// TrimToTopN removes every member of key ranked below position n.
	TrimToTopN(ctx context.Context, key string, n int) error

	// RankOf returns the zero-based descending rank of member in key.
	// found is false when the member is not present.
	RankOf(ctx context.Context, key, member string) (rank int64, found bool, err error)

	// TopRange returns up to n members of key from the highest score down.
	TopRange(ctx context.Context, key string, n int) ([]Member, error)

	// Count returns the number of members in key.
	Count(ctx context.Context, key string) (int64, error)
}
