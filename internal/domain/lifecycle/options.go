package lifecycle

import (
	"time"

	"github.com/okian/whodunit/internal/domain/scoring"
	"github.com/okian/whodunit/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l.Named("lifecycle")
		}
	}
}

// WithPolicy sets the scoring policy.
func WithPolicy(p *scoring.Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithPublisher sets the journal publisher.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithFirstActiveID sets the id given to the first active case.
func WithFirstActiveID(id int64) Option {
	return func(e *Engine) {
		if id > 0 {
			e.firstID = id
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator sets the journal entry id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

func withHooks(arrived, beforeCommit func(op string, activeID int64)) Option {
	return func(e *Engine) {
		e.hooks = hooks{arrived: arrived, beforeCommit: beforeCommit}
	}
}
