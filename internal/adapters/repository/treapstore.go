package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/highscore/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: score DESC, then member DESC, matching ZREVRANGE.
// "before" means ranks earlier, so in-order traversal yields the
// leaderboard from best to worst. Each node carries its subtree size so
// rank lookups and trims are O(log n).

const backendTreap = "treap"

// treap node
type node struct {
	id    string
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before returns true if (aScore, aID) should appear before (bScore, bID)
// in the leaderboard.
func before(aScore int64, aID string, bScore int64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID > bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score int64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if before(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score int64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	} else if before(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// splitAt splits n into the first k nodes in rank order and the rest.
func splitAt(n *node, k int) (*node, *node) {
	if n == nil {
		return nil, nil
	}
	if nsize(n.left) >= k {
		l, r := splitAt(n.left, k)
		n.left = r
		fix(n)
		return l, n
	}
	l, r := splitAt(n.right, k-nsize(n.left)-1)
	n.right = l
	fix(n)
	return n, r
}

// rankOf returns the zero-based position of (score, id), or -1.
func rankOf(n *node, id string, score int64) int {
	rank := 0
	for n != nil {
		switch {
		case score == n.score && id == n.id:
			return rank + nsize(n.left)
		case before(score, id, n.score, n.id):
			n = n.left
		default:
			rank += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectTopN appends up to limit members in rank order.
func collectTopN(n *node, limit int, out *[]Member) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Member{ID: n.id, Score: n.score})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// walk calls fn for every node of n.
func walk(n *node, fn func(*node)) {
	if n == nil {
		return
	}
	walk(n.left, fn)
	fn(n)
	walk(n.right, fn)
}

// rankedSet is the treap plus a score index for one key.
type rankedSet struct {
	root   *node
	scores map[string]int64
}

func (rs *rankedSet) upsert(member string, score int64) {
	if old, ok := rs.scores[member]; ok {
		if old == score {
			return
		}
		rs.root = deleteNode(rs.root, member, old)
	}
	rs.scores[member] = score
	rs.root = insert(rs.root, member, score)
}

// trim keeps the first n members and returns how many were removed.
func (rs *rankedSet) trim(n int) int {
	if nsize(rs.root) <= n {
		return 0
	}
	keep, drop := splitAt(rs.root, n)
	rs.root = keep
	removed := 0
	walk(drop, func(d *node) {
		delete(rs.scores, d.id)
		removed++
	})
	return removed
}

// TreapStore keeps one treap per key behind a single RWMutex.
type TreapStore struct {
	mu      sync.RWMutex
	sets    map[string]*rankedSet
	members int

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*TreapStore)(nil)

// NewTreapStore constructs a treap store with configuration options.
// The background metrics updater stops when ctx is done or on Close.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		sets:                  make(map[string]*rankedSet),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)

	return s
}

// Close stops the background metrics updater.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func checkArgs(key, member string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if member == "" {
		return ErrInvalidMember
	}
	return nil
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOp(backendTreap, op, float64(time.Since(start).Microseconds())/1000, err)
}

// Upsert implements Store.Upsert in O(log n) expected time.
func (s *TreapStore) Upsert(ctx context.Context, key string, score int64, member string) (err error) {
	start := time.Now()
	defer func() { observe("upsert", start, err) }()

	if err := checkArgs(key, member); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.upsertLocked(key, score, member)
	s.mu.Unlock()
	return nil
}

// UpsertAndTrim implements Store.UpsertAndTrim under one lock hold.
func (s *TreapStore) UpsertAndTrim(ctx context.Context, key string, score int64, member string, n int) (err error) {
	start := time.Now()
	defer func() { observe("upsert_trim", start, err) }()

	if n < 1 {
		return ErrInvalidLimit
	}
	if err := checkArgs(key, member); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	rs := s.upsertLocked(key, score, member)
	removed := rs.trim(n)
	s.members -= removed
	s.mu.Unlock()

	metrics.RecordTrimmedMembers(removed)
	return nil
}

// TrimToTopN implements Store.TrimToTopN.
func (s *TreapStore) TrimToTopN(ctx context.Context, key string, n int) (err error) {
	start := time.Now()
	defer func() { observe("trim", start, err) }()

	if n < 1 {
		return ErrInvalidLimit
	}
	if key == "" {
		return ErrInvalidKey
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	removed := 0
	if rs, ok := s.sets[key]; ok {
		removed = rs.trim(n)
		s.members -= removed
	}
	s.mu.Unlock()

	metrics.RecordTrimmedMembers(removed)
	return nil
}

// RankOf implements Store.RankOf in O(log n).
func (s *TreapStore) RankOf(ctx context.Context, key, member string) (rank int64, found bool, err error) {
	start := time.Now()
	defer func() { observe("rank", start, err) }()

	if err := checkArgs(key, member); err != nil {
		return 0, false, err
	}
	if err := ctxErr(ctx); err != nil {
		return 0, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.sets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := rs.scores[member]
	if !ok {
		return 0, false, nil
	}
	r := rankOf(rs.root, member, score)
	if r < 0 {
		return 0, false, nil
	}
	return int64(r), true, nil
}

// TopRange implements Store.TopRange.
func (s *TreapStore) TopRange(ctx context.Context, key string, n int) (out []Member, err error) {
	start := time.Now()
	defer func() { observe("top_range", start, err) }()

	if n < 1 {
		return nil, ErrInvalidLimit
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.sets[key]
	if !ok {
		return []Member{}, nil
	}
	out = make([]Member, 0, min(n, nsize(rs.root)))
	collectTopN(rs.root, n, &out)
	return out, nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if rs, ok := s.sets[key]; ok {
		return int64(nsize(rs.root)), nil
	}
	return 0, nil
}

// Keys returns the number of keys held by the store.
func (s *TreapStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// upsertLocked assumes s.mu is held for writing.
func (s *TreapStore) upsertLocked(key string, score int64, member string) *rankedSet {
	rs, ok := s.sets[key]
	if !ok {
		rs = &rankedSet{scores: make(map[string]int64)}
		s.sets[key] = rs
	}
	if _, exists := rs.scores[member]; !exists {
		s.members++
	}
	rs.upsert(member, score)
	return rs
}

// startMetricsUpdater starts a background goroutine that updates store gauges.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *TreapStore) updateMetrics() {
	s.mu.RLock()
	keys, members := len(s.sets), s.members
	s.mu.RUnlock()

	metrics.UpdateRankedKeys(keys)
	metrics.UpdateRankedMembers(members)
}
