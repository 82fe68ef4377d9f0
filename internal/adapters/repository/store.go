// Package repository provides the static per-track minisector tables.
package repository

import "context"

// Track is the static minisector table of one circuit.
type Track struct {
	// Name is the event name the table applies to, e.g. "Italian Grand Prix".
	Name string `yaml:"name"`
	// Bounds are the strictly increasing minisector boundaries in metres.
	Bounds []float64 `yaml:"bounds"`
	// Labels name the minisectors in order: the first entry is minisector 1.
	// A table may label the tail past the last boundary as well.
	Labels []string `yaml:"labels"`
}

// LabelMap returns Labels keyed by 1-based minisector index. Empty labels are
// left out so the minisector falls back to speed classification.
func (t Track) LabelMap() map[int]string {
	if len(t.Labels) == 0 {
		return nil
	}
	out := make(map[int]string, len(t.Labels))
	for i, l := range t.Labels {
		if l != "" {
			out[i+1] = l
		}
	}
	return out
}

// Store resolves static minisector tables by event name.
type Store interface {
	// Track returns the table for event. Returns ErrTrackNotFound when the
	// track has no static table and minisectors must be computed.
	Track(ctx context.Context, event string) (Track, error)

	// Tracks lists every known table sorted by name.
	Tracks(ctx context.Context) []Track
}
