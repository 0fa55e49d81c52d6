package recordstore

import "errors"

// Sentinel kinds for record store errors.
var (
	ErrNotFound          = errors.New("submission not found")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrStoreUnavailable  = errors.New("record store unavailable")
)
