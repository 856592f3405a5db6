package worker

import "errors"

var (
	// ErrNotFound is returned by Store lookups that match nothing.
	ErrNotFound = errors.New("not found")

	// ErrLockBusy is returned when another process holds the entity lock.
	ErrLockBusy = errors.New("lock held by another worker")
)
