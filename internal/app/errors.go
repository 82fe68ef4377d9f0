package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalidRequest = errors.New("invalid analysis request")
	ErrBackpressure   = errors.New("lap loader queue is full")
	ErrNotStarted     = errors.New("service not started")
)
