package journal

import "errors"

// Sentinel kinds for journal errors.
var (
	ErrInvalidEntry   = errors.New("invalid journal entry")
	ErrDuplicateEntry = errors.New("duplicate journal entry")
)
