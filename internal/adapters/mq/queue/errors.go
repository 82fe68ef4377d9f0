package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	// ErrFull: the queue is at capacity; callers should shed load.
	ErrFull = errors.New("queue full")
	// ErrClosed: the queue no longer accepts jobs.
	ErrClosed = errors.New("queue closed")
)
