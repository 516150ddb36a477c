package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/prudhvinik1/whatsnote/internal/models"
	"github.com/prudhvinik1/whatsnote/internal/services"
)

// handleEvents accepts a single event object or an ordered array of events.
// Each event is applied independently; a malformed item does not abort the
// rest of the batch.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var events []models.Event
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(body, &events); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event array")
			return
		}
	} else {
		var event models.Event
		if err := json.Unmarshal(body, &event); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event")
			return
		}
		events = []models.Event{event}
	}

	failures := s.events.Submit(r.Context(), claims.AccountID, claims.SessionID, events)
	if len(failures) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Storage failures are retryable and take precedence over malformed items
	status := http.StatusBadRequest
	if services.Retryable(failures) {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{"errors": failures})
}

// handleSync is the authoritative catch-up path: it returns every event the
// device has not yet observed, ordered for deterministic replay.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	watermark, err := strconv.ParseInt(r.URL.Query().Get("watermark"), 10, 64)
	if err != nil || watermark < 0 {
		writeError(w, http.StatusBadRequest, "invalid watermark")
		return
	}

	events, err := s.events.ChangesSince(r.Context(), claims.AccountID, watermark)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	if events == nil {
		events = []models.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}
