package seed

import "errors"

// ErrInvalidSeed reports a seed that breaks a catalog invariant.
var ErrInvalidSeed = errors.New("invalid seed")
