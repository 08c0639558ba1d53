package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
)

// Bounds for the history limit query parameter.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleListEntities returns entity states, optionally filtered.
//
// Query parameters:
//   - sensor_id: only entities of this sensor
//   - kind: "direct" or "calculated"
//   - available: "true" or "false"
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var states []entity.State
	if sensorID := q.Get("sensor_id"); sensorID != "" {
		states = s.engine.Store().StatesBySensor(sensorID)
	} else {
		states = s.engine.Store().States()
	}

	kind := q.Get("kind")
	if kind != "" && kind != string(entity.KindDirect) && kind != string(entity.KindCalculated) {
		writeBadRequest(w, "kind must be direct or calculated")
		return
	}

	var wantAvailable *bool
	if raw := q.Get("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "available must be true or false")
			return
		}
		wantAvailable = &v
	}

	filtered := make([]entity.State, 0, len(states))
	for _, st := range states {
		if kind != "" && string(st.Kind) != kind {
			continue
		}
		if wantAvailable != nil && st.Available != *wantAvailable {
			continue
		}
		filtered = append(filtered, st)
	}
	sortStates(filtered)

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": filtered,
		"count":    len(filtered),
	})
}

// handleGetEntity returns the current state of one entity.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := s.engine.Store().State(id)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		s.logger.Error("failed to get entity", "entity_id", id, "error", err)
		writeInternalError(w, "failed to get entity")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// handleGetEntityHistory returns recorded value changes, newest first.
func (s *Server) handleGetEntityHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.engine.Store().Get(id); err != nil {
		writeNotFound(w, "entity not found")
		return
	}

	history := s.engine.History()
	if history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history is not recorded")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := history.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to load entity history", "entity_id", id, "error", err)
		writeInternalError(w, "failed to load entity history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter. Empty means the
// default; values above the maximum are clamped.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}
