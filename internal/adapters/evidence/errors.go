package evidence

import "errors"

// ErrInvalidItem is returned for evidence that breaks the store invariants.
var ErrInvalidItem = errors.New("invalid evidence item")
