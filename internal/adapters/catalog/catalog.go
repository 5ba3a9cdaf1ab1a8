// Package catalog serves immutable case templates.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/okian/whodunit/internal/domain/model"
)

// Catalog is the read-only template source.
type Catalog interface {
	// ListTemplates yields every template ordered by case id. Each call starts over.
	ListTemplates(ctx context.Context) iter.Seq2[model.CaseTemplate, error]
	// GetTemplate returns one template or an error wrapping model.ErrNotFound.
	GetTemplate(ctx context.Context, caseID int64) (model.CaseTemplate, error)
}

// InMemory is a Catalog backed by a sorted slice.
type InMemory struct {
	templates []model.CaseTemplate
	index     map[int64]int
}

var _ Catalog = (*InMemory)(nil)

// NewInMemory copies templates into a new catalog. Duplicate ids are rejected.
func NewInMemory(templates []model.CaseTemplate) (*InMemory, error) {
	c := &InMemory{
		templates: make([]model.CaseTemplate, 0, len(templates)),
		index:     make(map[int64]int, len(templates)),
	}
	for _, t := range templates {
		c.templates = append(c.templates, clone(t))
	}
	slices.SortFunc(c.templates, func(a, b model.CaseTemplate) int { return cmp.Compare(a.CaseID, b.CaseID) })
	for i, t := range c.templates {
		if _, dup := c.index[t.CaseID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTemplate, t.CaseID)
		}
		c.index[t.CaseID] = i
	}
	return c, nil
}

// ListTemplates implements Catalog. The sequence stops early when ctx is done.
func (c *InMemory) ListTemplates(ctx context.Context) iter.Seq2[model.CaseTemplate, error] {
	return func(yield func(model.CaseTemplate, error) bool) {
		for _, t := range c.templates {
			if err := ctx.Err(); err != nil {
				yield(model.CaseTemplate{}, fmt.Errorf("list templates: %w", err))
				return
			}
			if !yield(clone(t), nil) {
				return
			}
		}
	}
}

// GetTemplate implements Catalog.
func (c *InMemory) GetTemplate(ctx context.Context, caseID int64) (model.CaseTemplate, error) {
	i, ok := c.index[caseID]
	if !ok {
		return model.CaseTemplate{}, fmt.Errorf("case template %d: %w", caseID, model.ErrNotFound)
	}
	return clone(c.templates[i]), nil
}

// Len returns the number of templates.
func (c *InMemory) Len() int { return len(c.templates) }

func clone(t model.CaseTemplate) model.CaseTemplate {
	t.Suspects = slices.Clone(t.Suspects)
	return t
}
