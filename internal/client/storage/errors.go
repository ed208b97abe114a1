package storage

import "errors"

// ErrAuthNotFound indicates that no authentication data exists
var ErrAuthNotFound = errors.New("authentication data not found")
