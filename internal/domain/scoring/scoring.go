// Package scoring holds the policy table that maps lifecycle events to score deltas.
package scoring

import (
	"fmt"
	"sort"
)

// Event names a scoring event.
type Event string

// Scoring events emitted by the lifecycle engine.
const (
	CulpritJoined      Event = "culprit_joined"
	DetectiveAssigned  Event = "detective_assigned"
	DetectiveCorrect   Event = "detective_correct"
	DetectiveIncorrect Event = "detective_incorrect"
	CulpritDeceived    Event = "culprit_deceived"
	CulpritCaught      Event = "culprit_caught"
)

// Default deltas.
const (
	defaultCulpritJoined      = 1
	defaultDetectiveAssigned  = 0
	defaultDetectiveCorrect   = 3
	defaultDetectiveIncorrect = 0
	defaultCulpritDeceived    = 2
	defaultCulpritCaught      = 0
)

// Events lists every scoring event.
func Events() []Event {
	return []Event{CulpritJoined, DetectiveAssigned, DetectiveCorrect, DetectiveIncorrect, CulpritDeceived, CulpritCaught}
}

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithDelta overrides the delta for one event.
func WithDelta(event Event, delta int64) Option {
	return func(p *Policy) {
		p.deltas[event] = delta
	}
}

// WithDeltasFromConfig overrides deltas from a configuration map keyed by event name.
// Unknown names are kept so Validate can report them.
func WithDeltasFromConfig(deltas map[string]int64) Option {
	return func(p *Policy) {
		for name, delta := range deltas {
			p.deltas[Event(name)] = delta
		}
	}
}

// Policy is an immutable event→delta table.
type Policy struct {
	deltas map[Event]int64
}

// NewPolicy builds a policy from the defaults and opts.
func NewPolicy(opts ...Option) (*Policy, error) {
	p := &Policy{deltas: map[Event]int64{
		CulpritJoined:      defaultCulpritJoined,
		DetectiveAssigned:  defaultDetectiveAssigned,
		DetectiveCorrect:   defaultDetectiveCorrect,
		DetectiveIncorrect: defaultDetectiveIncorrect,
		CulpritDeceived:    defaultCulpritDeceived,
		CulpritCaught:      defaultCulpritCaught,
	}}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultPolicy returns the policy with default deltas.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy()
	return p
}

// Validate rejects events the engine never emits.
func (p *Policy) Validate() error {
	known := make(map[Event]struct{}, len(Events()))
	for _, e := range Events() {
		known[e] = struct{}{}
	}
	for e := range p.deltas {
		if _, ok := known[e]; !ok {
			return fmt.Errorf("scoring event %q: %w", e, ErrUnknownEvent)
		}
	}
	return nil
}

// Delta returns the delta for event.
func (p *Policy) Delta(event Event) int64 {
	return p.deltas[event]
}

// Outcome returns the detective and culprit events for a resolved guess.
func (p *Policy) Outcome(wasCorrect bool) (detective, culprit Event) {
	if wasCorrect {
		return DetectiveCorrect, CulpritCaught
	}
	return DetectiveIncorrect, CulpritDeceived
}

// Table returns a copy of the policy keyed by event name.
func (p *Policy) Table() map[string]int64 {
	out := make(map[string]int64, len(p.deltas))
	for e, d := range p.deltas {
		out[string(e)] = d
	}
	return out
}

// Names returns the event names in sorted order.
func (p *Policy) Names() []string {
	names := make([]string, 0, len(p.deltas))
	for e := range p.deltas {
		names = append(names, string(e))
	}
	sort.Strings(names)
	return names
}
