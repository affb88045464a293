package domain

import "errors"

// ErrNotFound indicates a missing key in a store or cache.
var ErrNotFound = errors.New("not found")
