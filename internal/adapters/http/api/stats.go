package api

import "net/http"

// StatsProvider reports loader, cache and catalog counters.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.GetStats())
}
