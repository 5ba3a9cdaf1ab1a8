package scoring

import "errors"

// ErrUnknownEvent is returned for a policy entry with no matching event.
var ErrUnknownEvent = errors.New("unknown scoring event")
