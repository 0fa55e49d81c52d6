package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *TreapStore {
	t.Helper()
	s := NewTreapStore(context.Background(), WithMetricsUpdateInterval(10*time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if n, _ := store.Count(ctx, "k"); n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}

	if err := store.Upsert(ctx, "k", 85, "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := store.Count(ctx, "k"); n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}

	rank, found, err := store.RankOf(ctx, "k", "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || rank != 0 {
		t.Errorf("expected rank 0 found, got %d %v", rank, found)
	}

	top, err := store.TopRange(ctx, "k", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 1 || top[0] != (Member{ID: "m1", Score: 85}) {
		t.Errorf("unexpected top range %+v", top)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	scores := map[string]int64{"a": 10, "b": 50, "c": 30, "d": 50, "e": 0}
	for m, sc := range scores {
		if err := store.Upsert(ctx, "k", sc, m); err != nil {
			t.Fatalf("upsert %s: %v", m, err)
		}
	}

	top, err := store.TopRange(ctx, "k", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ties are broken by member descending, as ZREVRANGE does.
	want := []Member{{"d", 50}, {"b", 50}, {"c", 30}, {"a", 10}, {"e", 0}}
	if fmt.Sprint(top) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, top)
	}

	for i, m := range want {
		rank, found, err := store.RankOf(ctx, "k", m.ID)
		if err != nil || !found || rank != int64(i) {
			t.Errorf("rank of %s: want %d, got %d found=%v err=%v", m.ID, i, rank, found, err)
		}
	}
}

func TestTreapStore_UpsertReplacesScore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Upsert(ctx, "k", 10, "a")
	_ = store.Upsert(ctx, "k", 20, "b")
	_ = store.Upsert(ctx, "k", 30, "a")

	if n, _ := store.Count(ctx, "k"); n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}
	rank, _, _ := store.RankOf(ctx, "k", "a")
	if rank != 0 {
		t.Errorf("expected a to lead after its score rose, got rank %d", rank)
	}

	// Lowering also replaces, unlike a best-score store.
	_ = store.Upsert(ctx, "k", 5, "a")
	rank, _, _ = store.RankOf(ctx, "k", "a")
	if rank != 1 {
		t.Errorf("expected a to drop to rank 1, got %d", rank)
	}
}

func TestTreapStore_UpsertAndTrim(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := store.UpsertAndTrim(ctx, "k", int64(i*10), fmt.Sprintf("m%d", i), 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	top, _ := store.TopRange(ctx, "k", 10)
	want := []Member{{"m4", 40}, {"m3", 30}, {"m2", 20}}
	if fmt.Sprint(top) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, top)
	}

	// A member below the cap is inserted and evicted in the same step.
	if err := store.UpsertAndTrim(ctx, "k", 1, "low", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, found, _ := store.RankOf(ctx, "k", "low"); found {
		t.Error("expected low scorer to be trimmed")
	}
	if n, _ := store.Count(ctx, "k"); n != 3 {
		t.Errorf("expected 3 members, got %d", n)
	}

	if err := store.UpsertAndTrim(ctx, "k", 1, "x", 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestTreapStore_TrimToTopN(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 20; i++ {
		_ = store.Upsert(ctx, "k", int64(i), fmt.Sprintf("m%02d", i))
	}
	if err := store.TrimToTopN(ctx, "k", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	top, _ := store.TopRange(ctx, "k", 100)
	if len(top) != 5 || top[0].Score != 19 || top[4].Score != 15 {
		t.Fatalf("unexpected members after trim: %v", top)
	}

	// Trimming an unknown key or a key already within bounds is a no-op.
	if err := store.TrimToTopN(ctx, "missing", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.TrimToTopN(ctx, "k", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := store.Count(ctx, "k"); n != 5 {
		t.Errorf("expected 5 members, got %d", n)
	}
}

func TestTreapStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Upsert(ctx, "a", 1, "m")
	_ = store.Upsert(ctx, "b", 100, "m")

	ra, _, _ := store.RankOf(ctx, "a", "m")
	rb, _, _ := store.RankOf(ctx, "b", "m")
	if ra != 0 || rb != 0 {
		t.Fatalf("expected both ranks 0, got %d %d", ra, rb)
	}
	if store.Keys() != 2 {
		t.Errorf("expected 2 keys, got %d", store.Keys())
	}
	if _, found, _ := store.RankOf(ctx, "c", "m"); found {
		t.Error("expected absent member in unknown key")
	}
}

func TestTreapStore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Upsert(ctx, "", 1, "m"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if err := store.Upsert(ctx, "k", 1, ""); !errors.Is(err, ErrInvalidMember) {
		t.Errorf("expected ErrInvalidMember, got %v", err)
	}
	if _, err := store.TopRange(ctx, "k", 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.Count(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey from Count, got %v", err)
	}
	top, err := store.TopRange(ctx, "empty", 10)
	if err != nil || len(top) != 0 {
		t.Errorf("expected empty range, got %v %v", top, err)
	}
}

func TestTreapStore_ContextCancellation(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Upsert(ctx, "k", 1, "m")
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrStoreUnavailable wrapping context.Canceled, got %v", err)
	}
	if _, _, err := store.RankOf(ctx, "k", "m"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if n, _ := store.Count(context.Background(), "k"); n != 0 {
		t.Errorf("expected nothing written, got %d", n)
	}
}

// TestTreapStore_RankMatchesSortedOrder checks O(log n) ranks against a
// brute-force sort of the same data.
func TestTreapStore_RankMatchesSortedOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rng := rand.New(rand.NewSource(7))

	all := make([]Member, 0, 500)
	for i := 0; i < 500; i++ {
		m := Member{ID: fmt.Sprintf("m%03d", i), Score: int64(rng.Intn(50))}
		all = append(all, m)
		_ = store.Upsert(ctx, "k", m.Score, m.ID)
	}
	sort.Slice(all, func(i, j int) bool { return before(all[i].Score, all[i].ID, all[j].Score, all[j].ID) })

	for i, m := range all {
		rank, found, err := store.RankOf(ctx, "k", m.ID)
		if err != nil || !found || rank != int64(i) {
			t.Fatalf("member %s: want rank %d, got %d found=%v err=%v", m.ID, i, rank, found, err)
		}
	}

	top, _ := store.TopRange(ctx, "k", 25)
	if fmt.Sprint(top) != fmt.Sprint(all[:25]) {
		t.Fatalf("top range mismatch:\nwant %v\ngot  %v", all[:25], top)
	}

	_ = store.TrimToTopN(ctx, "k", 100)
	for i, m := range all {
		_, found, _ := store.RankOf(ctx, "k", m.ID)
		if found != (i < 100) {
			t.Fatalf("member %s at %d: found=%v after trim to 100", m.ID, i, found)
		}
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				member := fmt.Sprintf("g%d-%d", g, i)
				if err := store.UpsertAndTrim(ctx, "capped", int64(i), member, 10); err != nil {
					t.Errorf("upsert and trim: %v", err)
					return
				}
				_ = store.Upsert(ctx, "open", int64(i), member)
				_, _, _ = store.RankOf(ctx, "open", member)
				_, _ = store.TopRange(ctx, "capped", 10)
			}
		}(g)
	}
	wg.Wait()

	if n, _ := store.Count(ctx, "capped"); n != 10 {
		t.Errorf("expected capped bucket to hold 10, got %d", n)
	}
	if n, _ := store.Count(ctx, "open"); n != 1600 {
		t.Errorf("expected open bucket to hold 1600, got %d", n)
	}
	top, _ := store.TopRange(ctx, "capped", 10)
	for _, m := range top {
		if m.Score != 199 && m.Score != 198 {
			t.Fatalf("capped bucket kept a low score: %v", top)
		}
	}
}

func TestTreapStore_CloseBehavior(t *testing.T) {
	store := NewTreapStore(context.Background())
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func BenchmarkTreapStore_UpsertAndTrim(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.UpsertAndTrim(ctx, "k", int64(i%1000), fmt.Sprintf("m%d", i), 10)
	}
}

func BenchmarkTreapStore_RankOf(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()
	for i := 0; i < 100000; i++ {
		_ = store.Upsert(ctx, "k", int64(i%5000), fmt.Sprintf("m%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = store.RankOf(ctx, "k", fmt.Sprintf("m%d", i%100000))
	}
}
