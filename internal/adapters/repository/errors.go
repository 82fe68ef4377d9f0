package repository

import "errors"

// Sentinel kinds for track catalog errors.
var (
	ErrTrackNotFound = errors.New("track not found")
	ErrInvalidTrack  = errors.New("invalid track definition")
	ErrLoadCatalog   = errors.New("failed to load track catalog")
)
