package repository

import "errors"

// ErrNotFound is wrapped when a lookup matches no row
var ErrNotFound = errors.New("not found")
