// Package model contains the domain entities shared by the lifecycle engine,
// its stores and the HTTP boundary.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an active case.
type Status string

// Lifecycle states in the only order a case may visit them.
const (
	StatusOpen               Status = "Open"
	StatusFabricating        Status = "Fabricating"
	StatusUnderInvestigation Status = "UnderInvestigation"
	StatusResolved           Status = "Resolved"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusFabricating, StatusUnderInvestigation, StatusResolved}
}

// Next returns the only status reachable from s. Resolved has none.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusOpen:
		return StatusFabricating, true
	case StatusFabricating:
		return StatusUnderInvestigation, true
	case StatusUnderInvestigation:
		return StatusResolved, true
	default:
		return "", false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusFabricating, StatusUnderInvestigation, StatusResolved:
		return true
	}
	return false
}

// ParseStatus accepts the wire form of a status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.TrimSpace(v))
	if !s.Valid() {
		return "", fmt.Errorf("status %q: %w", v, ErrInvalidArgument)
	}
	return s, nil
}

// Role is the part a user plays in one active case.
type Role string

// Roles.
const (
	RoleClient    Role = "client"
	RoleCulprit   Role = "culprit"
	RoleDetective Role = "detective"
)

// ParseRole accepts the wire form of a role, case-insensitively.
func ParseRole(v string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(v)))
	switch r {
	case RoleClient, RoleCulprit, RoleDetective:
		return r, nil
	}
	return "", fmt.Errorf("role %q: %w", v, ErrInvalidArgument)
}

// Suspect is one of the people a detective may accuse.
type Suspect struct {
	Name        string
	Description string
}

// CaseTemplate is an immutable scenario that active cases are created from.
// Culprit is the ground truth and must name one of Suspects.
type CaseTemplate struct {
	CaseID      int64
	Title       string
	Description string
	Difficulty  int
	Suspects    []Suspect
	Culprit     string
}

// Suspect returns the listed suspect matching name.
func (t CaseTemplate) Suspect(name string) (Suspect, bool) {
	for _, s := range t.Suspects {
		if SameSuspect(s.Name, name) {
			return s, true
		}
	}
	return Suspect{}, false
}

// SameSuspect compares suspect names ignoring case and surrounding space.
func SameSuspect(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// EvidenceItem is a fixed piece of evidence belonging to a case template.
// Exactly one of IsTrue and IsFakeCandidate is set.
type EvidenceItem struct {
	EvidenceID      int64
	CaseID          int64
	Description     string
	IsTrue          bool
	IsFakeCandidate bool
}

// Valid reports whether the item sits in exactly one partition.
func (e EvidenceItem) Valid() bool {
	return e.IsTrue != e.IsFakeCandidate
}

// Guess is the detective's accusation. It is created once per case.
type Guess struct {
	ActiveID      int64
	DetectiveID   int64
	ChosenSuspect string
	Reasoning     string
	SubmittedAt   time.Time
	WasCorrect    bool
}

// ActiveCase is one playthrough of a template. Zero ids mean "not assigned".
// Values are never mutated after publication; the engine replaces them.
type ActiveCase struct {
	ActiveID             int64
	CaseID               int64
	ClientID             int64
	CulpritID            int64
	DetectiveID          int64
	FabricatedEvidenceID int64
	Status               Status
	Guess                *Guess
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Participant returns the user holding role in c, or 0.
func (c ActiveCase) Participant(role Role) int64 {
	switch role {
	case RoleClient:
		return c.ClientID
	case RoleCulprit:
		return c.CulpritID
	case RoleDetective:
		return c.DetectiveID
	}
	return 0
}

// Solved reports whether the case resolved with a correct guess.
func (c ActiveCase) Solved() bool {
	return c.Status == StatusResolved && c.Guess != nil && c.Guess.WasCorrect
}

// Check verifies the field/status invariants of c.
func (c ActiveCase) Check() error {
	if !c.Status.Valid() {
		return fmt.Errorf("active case %d: unknown status %q", c.ActiveID, c.Status)
	}
	if c.CulpritID != 0 && c.Status == StatusOpen {
		return fmt.Errorf("active case %d: culprit set while %s", c.ActiveID, c.Status)
	}
	if c.CulpritID == 0 && c.Status != StatusOpen {
		return fmt.Errorf("active case %d: no culprit while %s", c.ActiveID, c.Status)
	}
	if c.FabricatedEvidenceID != 0 && (c.Status == StatusOpen || c.Status == StatusFabricating) {
		return fmt.Errorf("active case %d: fabrication set while %s", c.ActiveID, c.Status)
	}
	if c.DetectiveID != 0 && c.Status != StatusUnderInvestigation && c.Status != StatusResolved {
		return fmt.Errorf("active case %d: detective set while %s", c.ActiveID, c.Status)
	}
	if (c.Guess != nil) != (c.Status == StatusResolved) {
		return fmt.Errorf("active case %d: guess and status %s disagree", c.ActiveID, c.Status)
	}
	return nil
}

// ScoreChange is one signed adjustment of a user's score.
type ScoreChange struct {
	UserID   int64
	Delta    int64
	Reason   string
	ActiveID int64
	At       time.Time
}

// CaseFile is what the assigned detective gets to see: the template without
// its culprit, and the evidence as planted, without truth flags.
type CaseFile struct {
	Case     ActiveCase
	Template CaseTemplate
	Evidence []EvidenceItem
}

// JournalKind tells transition entries from score entries.
type JournalKind string

// Journal kinds.
const (
	JournalTransition JournalKind = "transition"
	JournalScore      JournalKind = "score"
)

// JournalEntry is an audit record emitted after a committed change.
type JournalEntry struct {
	ID       string
	ActiveID int64
	CaseID   int64
	Kind     JournalKind
	From     Status
	To       Status
	UserID   int64
	Role     Role
	Delta    int64
	Reason   string
	At       time.Time
}
