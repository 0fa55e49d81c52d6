// Package dedupe tracks client request ids so that a retried score
// submission is recorded once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen request ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// It returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a request that failed after being recorded
	// can be retried.
	Unrecord(ctx context.Context, id string)

	// Size returns the number of ids currently remembered.
	Size() int64
}

// InMemoryDeduper remembers up to maxSize ids and evicts the oldest first.
type InMemoryDeduper struct {
	mu      sync.Mutex
	maxSize int

	// seen maps an id to its slot in ring. Unbounded dedupers leave ring nil.
	seen map[string]int
	ring []string
	next int
}

var _ Deduper = (*InMemoryDeduper)(nil)

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) *InMemoryDeduper {
	d := &InMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

// SeenAndRecord implements Deduper.SeenAndRecord.
func (d *InMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.ring == nil {
		d.seen[id] = -1
		return false
	}

	// The slot may hold an id that was unrecorded and recorded again
	// elsewhere; only evict it if it still owns the slot.
	if old := d.ring[d.next]; old != "" {
		if slot, ok := d.seen[old]; ok && slot == d.next {
			delete(d.seen, old)
		}
	}
	d.ring[d.next] = id
	d.seen[id] = d.next
	d.next = (d.next + 1) % len(d.ring)
	return false
}

// Unrecord implements Deduper.Unrecord.
func (d *InMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if slot >= 0 {
		d.ring[slot] = ""
	}
}

// Size implements Deduper.Size.
func (d *InMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// MaxSize returns the configured bound; zero or less means unbounded.
func (d *InMemoryDeduper) MaxSize() int {
	return d.maxSize
}
