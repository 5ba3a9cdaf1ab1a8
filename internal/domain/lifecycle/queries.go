package lifecycle

import (
	"context"
	"fmt"

	"github.com/okian/whodunit/internal/domain/model"
)

// Get returns the committed state of activeID.
func (e *Engine) Get(ctx context.Context, activeID int64) (model.ActiveCase, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	s, ok := e.slots[activeID]
	if !ok {
		return model.ActiveCase{}, fmt.Errorf("active case %d: %w", activeID, model.ErrNotFound)
	}
	return s.rec, nil
}

// ListOpen returns the cases waiting for a culprit, ordered by active id.
func (e *Engine) ListOpen(ctx context.Context) []model.ActiveCase {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	return e.records(e.dir.Open())
}

// ListByStatus returns the cases in status, ordered by active id.
func (e *Engine) ListByStatus(ctx context.Context, status model.Status) ([]model.ActiveCase, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	ids, err := e.dir.ByStatus(status)
	if err != nil {
		return nil, err
	}
	return e.records(ids), nil
}

// ListByRole returns the cases in which userID plays role, ordered by active id.
func (e *Engine) ListByRole(ctx context.Context, userID int64, role model.Role) ([]model.ActiveCase, error) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	ids, err := e.dir.ByRole(userID, role)
	if err != nil {
		return nil, err
	}
	return e.records(ids), nil
}

// Counts returns the number of cases per status.
func (e *Engine) Counts(ctx context.Context) map[model.Status]int {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	return e.dir.Counts()
}

// ReadCommitted runs fn while no commit can happen. fn must not call back
// into mutating engine operations.
func (e *Engine) ReadCommitted(fn func()) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	fn()
}

// Verify checks every case record and the participation index against each other.
func (e *Engine) Verify(ctx context.Context) error {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	all := make([]model.ActiveCase, 0, len(e.slots))
	for _, s := range e.slots {
		if err := s.rec.Check(); err != nil {
			return err
		}
		all = append(all, s.rec)
	}
	return e.dir.Consistent(all)
}

// records resolves ids to their records. Callers hold commitMu.
func (e *Engine) records(ids []int64) []model.ActiveCase {
	out := make([]model.ActiveCase, 0, len(ids))
	for _, id := range ids {
		if s, ok := e.slots[id]; ok {
			out = append(out, s.rec)
		}
	}
	return out
}
