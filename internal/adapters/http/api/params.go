package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"

	service "github.com/okian/laptrace/internal/app"
)

// Query parameter names.
const (
	paramEvent   = "session_name"
	paramSession = "identifier"
	paramYear    = "session_year"
	paramYears   = "session_years"
	paramDriver  = "driver"
	paramDrivers = "drivers"
)

// listParam collects every value of the named parameters, splitting
// comma separated values and dropping blanks.
func listParam(q url.Values, names ...string) []string {
	var out []string
	for _, name := range names {
		for _, v := range q[name] {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

func parseYears(raw []string) ([]int, error) {
	years := make([]int, 0, len(raw))
	for _, v := range raw {
		y, err := strconv.Atoi(v)
		if err != nil || y <= 0 {
			return nil, fmt.Errorf("invalid year %q: %w", v, ErrBadRequest)
		}
		years = append(years, y)
	}
	return years, nil
}

// parseRequest builds an analysis request from the query string. Missing
// fields are left for the service to reject.
func parseRequest(r *http.Request) (service.AnalysisRequest, error) {
	q := r.URL.Query()
	years, err := parseYears(listParam(q, paramYear, paramYears))
	if err != nil {
		return service.AnalysisRequest{}, err
	}
	return service.AnalysisRequest{
		Event:   strings.TrimSpace(q.Get(paramEvent)),
		Session: strings.TrimSpace(q.Get(paramSession)),
		Years:   years,
		Drivers: listParam(q, paramDrivers, paramDriver),
	}, nil
}

// gearQuery is a single-competitor request.
type gearQuery struct {
	year    int
	event   string
	session string
	driver  string
}

func parseGearQuery(r *http.Request) (gearQuery, error) {
	req, err := parseRequest(r)
	if err != nil {
		return gearQuery{}, err
	}
	years := lo.Uniq(req.Years)
	drivers := lo.Uniq(lo.Map(req.Drivers, func(d string, _ int) string { return strings.ToUpper(d) }))
	switch {
	case req.Event == "" || req.Session == "":
		return gearQuery{}, fmt.Errorf("%s and %s are required: %w", paramEvent, paramSession, ErrBadRequest)
	case len(years) != 1:
		return gearQuery{}, fmt.Errorf("exactly one %s is required: %w", paramYear, ErrBadRequest)
	case len(drivers) != 1:
		return gearQuery{}, fmt.Errorf("exactly one %s is required: %w", paramDriver, ErrBadRequest)
	}
	return gearQuery{year: years[0], event: req.Event, session: req.Session, driver: drivers[0]}, nil
}
