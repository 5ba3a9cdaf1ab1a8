package repository

import "time"

// Option applies a configuration option to the TreapLedger.
type Option func(*TreapLedger)

// WithHistoryLimit bounds the per-user change history. Older changes are discarded.
func WithHistoryLimit(limit int) Option {
	return func(l *TreapLedger) {
		if limit > 0 {
			l.historyLimit = limit
		}
	}
}

// WithClock sets the time source used to stamp changes that carry no time.
func WithClock(now func() time.Time) Option {
	return func(l *TreapLedger) {
		if now != nil {
			l.now = now
		}
	}
}
