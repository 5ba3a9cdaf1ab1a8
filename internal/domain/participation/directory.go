// Package participation indexes active cases by status and by participant.
//
// The index is derived data. The lifecycle engine owns it and applies every
// change inside its commit critical section, so a Directory performs no
// locking of its own and must not be shared outside that section.
package participation

import (
	"fmt"
	"slices"

	"github.com/okian/whodunit/internal/domain/model"
)

type idSet map[int64]struct{}

func (s idSet) sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Directory holds the status and role indexes.
type Directory struct {
	byStatus map[model.Status]idSet
	byRole   map[model.Role]map[int64]idSet
}

// New returns an empty directory.
func New() *Directory {
	d := &Directory{
		byStatus: make(map[model.Status]idSet, len(model.Statuses())),
		byRole: map[model.Role]map[int64]idSet{
			model.RoleClient:    {},
			model.RoleCulprit:   {},
			model.RoleDetective: {},
		},
	}
	for _, s := range model.Statuses() {
		d.byStatus[s] = idSet{}
	}
	return d
}

// Apply moves the index entries of a case from prev to next.
// prev is nil when next has just been created.
func (d *Directory) Apply(prev *model.ActiveCase, next model.ActiveCase) {
	id := next.ActiveID
	if prev != nil {
		delete(d.byStatus[prev.Status], id)
	}
	d.byStatus[next.Status][id] = struct{}{}

	for role, users := range d.byRole {
		user := next.Participant(role)
		if user == 0 {
			continue
		}
		if prev != nil && prev.Participant(role) == user {
			continue
		}
		set, ok := users[user]
		if !ok {
			set = idSet{}
			users[user] = set
		}
		set[id] = struct{}{}
	}
}

// Open returns the ids of cases waiting for a culprit.
func (d *Directory) Open() []int64 {
	return d.byStatus[model.StatusOpen].sorted()
}

// ByStatus returns the ids of cases in status, ascending.
func (d *Directory) ByStatus(status model.Status) ([]int64, error) {
	set, ok := d.byStatus[status]
	if !ok {
		return nil, fmt.Errorf("status %q: %w", status, model.ErrInvalidArgument)
	}
	return set.sorted(), nil
}

// ByRole returns the ids of cases where user plays role, ascending.
func (d *Directory) ByRole(user int64, role model.Role) ([]int64, error) {
	users, ok := d.byRole[role]
	if !ok {
		return nil, fmt.Errorf("role %q: %w", role, model.ErrInvalidArgument)
	}
	return users[user].sorted(), nil
}

// Counts returns the number of cases per status.
func (d *Directory) Counts() map[model.Status]int {
	out := make(map[model.Status]int, len(d.byStatus))
	for s, set := range d.byStatus {
		out[s] = len(set)
	}
	return out
}

// Consistent reports whether the index agrees with cases exactly.
func (d *Directory) Consistent(cases []model.ActiveCase) error {
	total := 0
	for _, set := range d.byStatus {
		total += len(set)
	}
	if total != len(cases) {
		return fmt.Errorf("directory holds %d cases, engine holds %d", total, len(cases))
	}
	for _, c := range cases {
		if _, ok := d.byStatus[c.Status][c.ActiveID]; !ok {
			return fmt.Errorf("active case %d missing from %s index", c.ActiveID, c.Status)
		}
		for role, users := range d.byRole {
			user := c.Participant(role)
			if user == 0 {
				continue
			}
			if _, ok := users[user][c.ActiveID]; !ok {
				return fmt.Errorf("active case %d missing from %s index of user %d", c.ActiveID, role, user)
			}
		}
	}
	return nil
}
