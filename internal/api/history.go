package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-switch/internal/entity"
)

// handleSwitchHistory returns recorded state changes for one switch,
// newest first.
//
// Query parameters:
//   - limit: number of entries (default 50, values above 200 are capped)
func (s *Server) handleSwitchHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not enabled")
		return
	}

	e, ok := s.lookupSwitch(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), e.ID(), limit)
	if err != nil {
		s.logger.Error("loading switch history", "entity_id", e.ID(), "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	if entries == nil {
		entries = []entity.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": e.ID(),
		"history":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter. Empty means the
// default; anything that is not a positive integer is rejected.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return entity.ClampHistoryLimit(0), nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit %q: must be a positive integer", raw)
	}
	return entity.ClampHistoryLimit(limit), nil
}
