package repository

import "github.com/okian/laptrace/pkg/logger"

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithOverrideFile layers an external YAML catalog over the built-in one.
// Tracks with the same name replace the built-in entry. An empty path is ignored.
func WithOverrideFile(path string) Option {
	return func(c *Catalog) {
		c.overridePath = path
	}
}

// WithLogger sets the catalog logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}
