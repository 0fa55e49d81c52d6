package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/rueidis"

	"github.com/okian/highscore/pkg/logger"
	"github.com/okian/highscore/pkg/metrics"
)

const backendRedis = "redis"

// RedisStore keeps each bucket as a Redis sorted set.
type RedisStore struct {
	client    rueidis.Client
	opTimeout time.Duration
	logger    logger.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing rueidis client.
func NewRedisStore(client rueidis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		opTimeout: 2 * time.Second,
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to addr and selects db.
func DialRedis(addr string, db int, opts ...RedisOption) (*RedisStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
		SelectDB:    db,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrStoreUnavailable, addr, err)
	}
	return NewRedisStore(client, opts...), nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	s.client.Close()
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func observeRedis(op string, start time.Time, err error) {
	metrics.RecordStoreOp(backendRedis, op, float64(time.Since(start).Microseconds())/1000, err)
}

func (s *RedisStore) zadd(key string, score int64, member string) rueidis.Completed {
	return s.client.B().Zadd().Key(key).ScoreMember().ScoreMember(float64(score), member).Build()
}

// trimCmd keeps ranks 0..n-1 of the reverse order, which are the
// highest ranks of the ascending order Redis indexes by.
func (s *RedisStore) trimCmd(key string, n int) rueidis.Completed {
	return s.client.B().Zremrangebyrank().Key(key).Start(0).Stop(int64(-(n + 1))).Build()
}

// Upsert implements Store.Upsert with ZADD.
func (s *RedisStore) Upsert(ctx context.Context, key string, score int64, member string) (err error) {
	start := time.Now()
	defer func() { observeRedis("zadd", start, err) }()

	if err := checkArgs(key, member); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Do(ctx, s.zadd(key, score, member)).Error(); err != nil {
		return unavailable("zadd", err)
	}
	return nil
}

// UpsertAndTrim implements Store.UpsertAndTrim as MULTI ZADD ZREMRANGEBYRANK EXEC.
func (s *RedisStore) UpsertAndTrim(ctx context.Context, key string, score int64, member string, n int) (err error) {
	start := time.Now()
	defer func() { observeRedis("zadd_trim", start, err) }()

	if n < 1 {
		return ErrInvalidLimit
	}
	if err := checkArgs(key, member); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resps := s.client.DoMulti(ctx,
		s.client.B().Multi().Build(),
		s.zadd(key, score, member),
		s.trimCmd(key, n),
		s.client.B().Exec().Build(),
	)
	for _, r := range resps {
		if err := r.Error(); err != nil {
			return unavailable("multi", err)
		}
	}

	replies, err := resps[len(resps)-1].ToArray()
	if err != nil {
		return unavailable("exec", err)
	}
	for _, reply := range replies {
		if err := reply.Error(); err != nil {
			s.logger.Warn(ctx, "transaction reply carried an error",
				logger.String("key", key),
				logger.String("member", member),
				logger.Error(err),
			)
			return unavailable("exec", err)
		}
	}
	if len(replies) == 2 {
		if removed, err := replies[1].AsInt64(); err == nil {
			metrics.RecordTrimmedMembers(int(removed))
		}
	}
	return nil
}

// TrimToTopN implements Store.TrimToTopN with ZREMRANGEBYRANK.
func (s *RedisStore) TrimToTopN(ctx context.Context, key string, n int) (err error) {
	start := time.Now()
	defer func() { observeRedis("zremrangebyrank", start, err) }()

	if n < 1 {
		return ErrInvalidLimit
	}
	if key == "" {
		return ErrInvalidKey
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	removed, err := s.client.Do(ctx, s.trimCmd(key, n)).AsInt64()
	if err != nil {
		return unavailable("zremrangebyrank", err)
	}
	metrics.RecordTrimmedMembers(int(removed))
	return nil
}

// RankOf implements Store.RankOf with ZREVRANK.
func (s *RedisStore) RankOf(ctx context.Context, key, member string) (rank int64, found bool, err error) {
	start := time.Now()
	defer func() { observeRedis("zrevrank", start, err) }()

	if err := checkArgs(key, member); err != nil {
		return 0, false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rank, err = s.client.Do(ctx, s.client.B().Zrevrank().Key(key).Member(member).Build()).AsInt64()
	if rueidis.IsRedisNil(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("zrevrank", err)
	}
	return rank, true, nil
}

// TopRange implements Store.TopRange with ZRANGE REV WITHSCORES.
func (s *RedisStore) TopRange(ctx context.Context, key string, n int) (out []Member, err error) {
	start := time.Now()
	defer func() { observeRedis("zrange", start, err) }()

	if n < 1 {
		return nil, ErrInvalidLimit
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cmd := s.client.B().Zrange().Key(key).Min("0").Max(fmt.Sprint(n - 1)).Rev().Withscores().Build()
	scores, err := s.client.Do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, unavailable("zrange", err)
	}

	out = make([]Member, 0, len(scores))
	for _, z := range scores {
		out = append(out, Member{ID: z.Member, Score: int64(math.Round(z.Score))})
	}
	return out, nil
}

// Count implements Store.Count with ZCARD.
func (s *RedisStore) Count(ctx context.Context, key string) (n int64, err error) {
	start := time.Now()
	defer func() { observeRedis("zcard", start, err) }()

	if key == "" {
		return 0, ErrInvalidKey
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err = s.client.Do(ctx, s.client.B().Zcard().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, unavailable("zcard", err)
	}
	return n, nil
}
