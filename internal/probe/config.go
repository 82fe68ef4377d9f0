// Package probe exercises a running laptrace server concurrently and checks
// the analysis results for internal consistency.
package probe

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/pkg/logger"
)

// Probe errors.
var (
	ErrInvalidConfig = errors.New("invalid probe config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrViolations    = errors.New("analysis invariants violated")
)

// Config holds configuration for a probe run.
type Config struct {
	BaseURL string        // Base URL of the service
	Event   string        // session_name to query
	Session string        // identifier to query
	Years   []int         // years to query
	Drivers []string      // drivers to query
	Rounds  int           // how many times every route is requested
	Workers int           // concurrent requests in flight
	Timeout time.Duration // HTTP request timeout
	Logger  logger.Logger
}

// Default configuration.
const (
	DefaultRounds  = 5
	DefaultTimeout = 30 * time.Second
)

func (c *Config) normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base url is required: %w", ErrInvalidConfig)
	case c.Event == "" || c.Session == "":
		return fmt.Errorf("event and session are required: %w", ErrInvalidConfig)
	case len(c.Years) == 0 || len(c.Drivers) == 0:
		return fmt.Errorf("at least one year and driver are required: %w", ErrInvalidConfig)
	}
	if c.Rounds < 1 {
		c.Rounds = DefaultRounds
	}
	if c.Workers < 1 {
		c.Workers = runtime.NumCPU() * 2
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	for i, d := range c.Drivers {
		c.Drivers[i] = strings.ToUpper(strings.TrimSpace(d))
	}
	return nil
}

// keys returns every competitor key the query can produce.
func (c *Config) keys() map[string]bool {
	out := make(map[string]bool, len(c.Years)*len(c.Drivers))
	for _, y := range c.Years {
		for _, d := range c.Drivers {
			out[telemetry.LapKey{Driver: d, Year: y}.String()] = true
		}
	}
	return out
}

// Report holds probe statistics.
type Report struct {
	Requests     int
	Succeeded    int
	Backpressure int
	Failed       int
	Records      map[string]int // records per route in the last good answer
	Violations   []string
	Duration     time.Duration
}
