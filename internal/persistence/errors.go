package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrStaleState is returned by conditional writes whose precondition no
	// longer holds, e.g. a court status that changed since it was read.
	ErrStaleState = errors.New("persistence: stale state")
	// ErrInsufficientInventory is returned when a decrement would make a
	// catalog item's inventory negative.
	ErrInsufficientInventory = errors.New("persistence: insufficient inventory")
	// ErrUnavailable marks failures to reach the backing store, such as
	// network errors and timeouts. The operation may succeed when retried.
	ErrUnavailable = errors.New("persistence: store unavailable")
)
