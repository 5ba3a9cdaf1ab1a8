// Package journal stores the audit trail of committed case transitions and
// score changes.
package journal

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/okian/whodunit/internal/domain/model"
)

// Writer appends journal entries.
type Writer interface {
	Append(ctx context.Context, e model.JournalEntry) error
}

// Reader reads journal entries.
type Reader interface {
	// ByActiveCase returns the entries of activeID in the order they were written.
	ByActiveCase(ctx context.Context, activeID int64) ([]model.JournalEntry, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

// Store is a journal backend.
type Store interface {
	Writer
	Reader
}

// InMemory keeps the journal in process memory.
type InMemory struct {
	mu     sync.RWMutex
	byCase map[int64][]model.JournalEntry
	ids    map[string]struct{}
}

var _ Store = (*InMemory)(nil)

// NewInMemory returns an empty journal.
func NewInMemory() *InMemory {
	return &InMemory{
		byCase: make(map[int64][]model.JournalEntry),
		ids:    make(map[string]struct{}),
	}
}

// Append implements Writer. Entry ids are unique; a repeated id is rejected.
func (j *InMemory) Append(ctx context.Context, e model.JournalEntry) error {
	if e.ID == "" || e.ActiveID <= 0 {
		return fmt.Errorf("journal entry %q for case %d: %w", e.ID, e.ActiveID, ErrInvalidEntry)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, dup := j.ids[e.ID]; dup {
		return fmt.Errorf("journal entry %q: %w", e.ID, ErrDuplicateEntry)
	}
	j.ids[e.ID] = struct{}{}
	j.byCase[e.ActiveID] = append(j.byCase[e.ActiveID], e)
	return nil
}

// ByActiveCase implements Reader.
func (j *InMemory) ByActiveCase(ctx context.Context, activeID int64) ([]model.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.byCase[activeID]), nil
}

// Count implements Reader.
func (j *InMemory) Count(ctx context.Context) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.ids), nil
}
