package telemetry

import "errors"

// Sentinel kinds for lap analysis errors.
var (
	// ErrLapNotFound: the competitor/year/session yields no valid timed lap.
	ErrLapNotFound = errors.New("lap not found")
	// ErrDegenerateLap: the lap has too few samples (or no distance) to analyse.
	ErrDegenerateLap = errors.New("degenerate lap")
	// ErrSessionUnavailable: the upstream provider could not supply the session.
	ErrSessionUnavailable = errors.New("session unavailable")
	// ErrNoValidLaps: nothing usable was left after loading and filtering.
	ErrNoValidLaps = errors.New("no valid laps")
	ErrInvalidKey  = errors.New("invalid lap key")
)
