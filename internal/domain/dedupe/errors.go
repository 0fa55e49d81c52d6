package dedupe

import "errors"

// ErrDuplicate reports a request id that was already accepted.
var ErrDuplicate = errors.New("duplicate request")
