package state

import "errors"

// Sentinel errors returned by Store, checked with errors.Is, following
// the persistence package's convention of package-level error vars.
var (
	ErrSessionNotFound = errors.New("state: session not found")
	ErrMessageNotFound = errors.New("state: message not found")
	ErrForbidden       = errors.New("state: forbidden")
)
