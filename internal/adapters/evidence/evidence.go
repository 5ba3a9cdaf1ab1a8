// Package evidence serves the fixed evidence set of each case template.
package evidence

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/okian/whodunit/internal/domain/model"
)

// Store is the read-only evidence source.
type Store interface {
	// GetEvidenceForCase returns the items of caseID ordered by evidence id.
	GetEvidenceForCase(ctx context.Context, caseID int64) ([]model.EvidenceItem, error)
}

// InMemory is a Store backed by per-case sorted slices.
type InMemory struct {
	byCase map[int64][]model.EvidenceItem
}

var _ Store = (*InMemory)(nil)

// NewInMemory validates and copies items keyed by case id.
func NewInMemory(items map[int64][]model.EvidenceItem) (*InMemory, error) {
	s := &InMemory{byCase: make(map[int64][]model.EvidenceItem, len(items))}
	for caseID, list := range items {
		list = slices.Clone(list)
		slices.SortFunc(list, func(a, b model.EvidenceItem) int { return cmp.Compare(a.EvidenceID, b.EvidenceID) })
		for i, e := range list {
			if e.CaseID != caseID {
				return nil, fmt.Errorf("%w: item %d of case %d points at case %d", ErrInvalidItem, e.EvidenceID, caseID, e.CaseID)
			}
			if !e.Valid() {
				return nil, fmt.Errorf("%w: item %d of case %d is both or neither true and fake", ErrInvalidItem, e.EvidenceID, caseID)
			}
			if i > 0 && list[i-1].EvidenceID == e.EvidenceID {
				return nil, fmt.Errorf("%w: duplicate item %d in case %d", ErrInvalidItem, e.EvidenceID, caseID)
			}
		}
		s.byCase[caseID] = list
	}
	return s, nil
}

// GetEvidenceForCase implements Store.
func (s *InMemory) GetEvidenceForCase(ctx context.Context, caseID int64) ([]model.EvidenceItem, error) {
	list, ok := s.byCase[caseID]
	if !ok {
		return nil, fmt.Errorf("evidence for case %d: %w", caseID, model.ErrNotFound)
	}
	return slices.Clone(list), nil
}

// Find looks up evidenceID in items, which must be ordered by evidence id.
func Find(items []model.EvidenceItem, evidenceID int64) (model.EvidenceItem, bool) {
	i, ok := slices.BinarySearchFunc(items, evidenceID, func(e model.EvidenceItem, id int64) int {
		return cmp.Compare(e.EvidenceID, id)
	})
	if !ok {
		return model.EvidenceItem{}, false
	}
	return items[i], true
}

// Split partitions items into true evidence and fake candidates.
func Split(items []model.EvidenceItem) (truths, candidates []model.EvidenceItem) {
	for _, e := range items {
		if e.IsTrue {
			truths = append(truths, e)
		} else if e.IsFakeCandidate {
			candidates = append(candidates, e)
		}
	}
	return truths, candidates
}
