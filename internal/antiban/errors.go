package antiban

import "errors"

// ErrAccountNotFound is returned when the checked channel account does not exist.
var ErrAccountNotFound = errors.New("channel account not found")
