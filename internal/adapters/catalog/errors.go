package catalog

import "errors"

// ErrDuplicateTemplate is returned when two templates share a case id.
var ErrDuplicateTemplate = errors.New("duplicate case template")
