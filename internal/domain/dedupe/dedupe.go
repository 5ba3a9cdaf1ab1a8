// Package dedupe remembers recently seen journal entry ids so that an entry
// delivered twice is written once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later delivery is accepted again. Used when
	// the write that followed SeenAndRecord failed.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// window is a bounded FIFO set: when full, the oldest id is forgotten first.
type window struct {
	mu      sync.Mutex
	seen    map[string]int // id -> slot in ring
	ring    []string
	head    int // next slot to write
	maxSize int
}

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	w := &window{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(w)
	}
	w.seen = make(map[string]int, w.maxSize)
	w.ring = make([]string, w.maxSize)
	return w
}

// SeenAndRecord implements Deduper.
func (w *window) SeenAndRecord(ctx context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return true
	}
	if old := w.ring[w.head]; old != "" {
		delete(w.seen, old)
	}
	w.ring[w.head] = id
	w.seen[id] = w.head
	w.head = (w.head + 1) % w.maxSize
	return false
}

// Unrecord implements Deduper.
func (w *window) Unrecord(ctx context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if slot, ok := w.seen[id]; ok {
		delete(w.seen, id)
		w.ring[slot] = ""
	}
}

// Size returns the number of ids currently remembered.
func (w *window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(len(w.seen))
}
