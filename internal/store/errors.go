package store

import "errors"

// ErrNotFound is returned when a vehicle id does not exist.
var ErrNotFound = errors.New("not found")
