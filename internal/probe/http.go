package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// client wraps http.Client with the probe's query parameters.
type client struct {
	http  *http.Client
	base  string
	query url.Values
}

func newClient(cfg *Config) *client {
	years := make([]string, len(cfg.Years))
	for i, y := range cfg.Years {
		years[i] = strconv.Itoa(y)
	}
	return &client{
		http: &http.Client{Timeout: cfg.Timeout},
		base: cfg.BaseURL,
		query: url.Values{
			"session_name": {cfg.Event},
			"identifier":   {cfg.Session},
			"session_year": {strings.Join(years, ",")},
			"drivers":      {strings.Join(cfg.Drivers, ",")},
		},
	}
}

// get fetches path and returns the status and body.
func (c *client) get(ctx context.Context, path string, withQuery bool) (int, []byte, error) {
	target := c.base + path
	if withQuery {
		target += "?" + c.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return resp.StatusCode, body, nil
}

// health verifies the service is running.
func (c *client) health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status, _, err := c.get(ctx, "/healthz", false)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrUnhealthy)
	}
	if status != http.StatusOK {
		return fmt.Errorf("healthz status %d: %w", status, ErrUnhealthy)
	}
	return nil
}

func decode[T any](body []byte) (T, error) {
	var out T
	err := json.Unmarshal(body, &out)
	return out, err
}
