package sqlitestore

import "errors"

// Sentinel kinds for store errors.
var (
	ErrOpen    = errors.New("failed to open telemetry store")
	ErrMigrate = errors.New("failed to migrate telemetry store")
	ErrInvalid = errors.New("invalid session")
)
