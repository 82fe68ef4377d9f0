package repository

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/laptrace/internal/domain/segment"
	"github.com/okian/laptrace/pkg/logger"
)

//go:embed tracks.yaml
var builtinTracks []byte

type catalogFile struct {
	Tracks []Track `yaml:"tracks"`
}

// Catalog is an in-memory Store built from YAML. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	tracks       map[string]Track // keyed by lower-cased name
	overridePath string
	logger       logger.Logger
}

var _ Store = (*Catalog)(nil)

// NewCatalog loads the built-in catalog and the optional override file.
func NewCatalog(ctx context.Context, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		tracks: make(map[string]Track),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.merge(builtinTracks); err != nil {
		return nil, fmt.Errorf("built-in catalog: %w", err)
	}
	if c.overridePath != "" {
		raw, err := os.ReadFile(c.overridePath)
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", c.overridePath, err, ErrLoadCatalog)
		}
		if err := c.merge(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", c.overridePath, err)
		}
		c.logger.Info(ctx, "track catalog override loaded", logger.String("path", c.overridePath))
	}
	c.logger.Debug(ctx, "track catalog ready", logger.Int("tracks", len(c.tracks)))
	return c, nil
}

// Track implements Store.
func (c *Catalog) Track(_ context.Context, event string) (Track, error) {
	t, ok := c.tracks[normalize(event)]
	if !ok {
		return Track{}, fmt.Errorf("%q: %w", event, ErrTrackNotFound)
	}
	return t, nil
}

// Tracks implements Store.
func (c *Catalog) Tracks(_ context.Context) []Track {
	out := make([]Track, 0, len(c.tracks))
	for _, t := range c.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) merge(raw []byte) error {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("%v: %w", err, ErrLoadCatalog)
	}
	for _, t := range f.Tracks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("track without name: %w", ErrInvalidTrack)
		}
		if _, err := segment.New(t.Bounds); err != nil {
			return fmt.Errorf("%s: %v: %w", t.Name, err, ErrInvalidTrack)
		}
		// A table may label every minisector plus the tail, never more.
		if len(t.Labels) > len(t.Bounds) {
			return fmt.Errorf("%s: %d labels for %d boundaries: %w", t.Name, len(t.Labels), len(t.Bounds), ErrInvalidTrack)
		}
		t.Labels = canonicalLabels(t.Labels)
		c.tracks[normalize(t.Name)] = t
	}
	return nil
}

// canonicalLabels fixes the case of the built-in label classes so that
// "slow" and "Slow" aggregate together.
func canonicalLabels(in []string) []string {
	canon := []string{segment.LabelSlow, segment.LabelMedium, segment.LabelFast, segment.LabelStraight}
	out := make([]string, len(in))
	for i, l := range in {
		l = strings.TrimSpace(l)
		for _, c := range canon {
			if strings.EqualFold(l, c) {
				l = c
				break
			}
		}
		out[i] = l
	}
	return out
}

func normalize(event string) string {
	return strings.ToLower(strings.TrimSpace(event))
}
