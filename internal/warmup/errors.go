package warmup

import "errors"

// Sentinel errors for the warm-up service layer.
var (
	ErrNotFound       = errors.New("warm-up progression not found")
	ErrAlreadyStarted = errors.New("warm-up already started for channel account")
	ErrInvalidInput   = errors.New("invalid warm-up override")
)
