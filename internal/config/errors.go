package config

import "errors"

// Sentinel error kinds for configuration loading.
var (
	// ErrInvalidConfig: a loaded value is out of range or inconsistent.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig: a source (file, env) could not be read or decoded.
	ErrLoadConfig = errors.New("load config failed")
)
