package player

import "errors"

// ErrNotFound is returned for any registry operation naming an identity
// that is not currently connected. It is never silently swallowed.
var ErrNotFound = errors.New("player not found")
