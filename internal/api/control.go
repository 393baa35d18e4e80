package api

import (
	"errors"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/wxalerts/internal/effects"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

func (a *API) handleUrgent(w http.ResponseWriter, _ *http.Request) {
	ev, ok := a.events.LatestUrgent()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after != "" {
		if _, err := ulid.ParseStrict(after); err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
	}

	events := a.events.After(after)
	cursor := after
	if n := len(events); n > 0 {
		cursor = events[n-1].ID
	}
	if events == nil {
		events = []effects.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"cursor": cursor,
	})
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"phase": a.checker.Phase().String()})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	a.checker.Kick()
	a.logger.Info(r.Context(), "manual alert check requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"phase": a.checker.Phase().String()})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	err := a.checker.Reset(r.Context())
	if errors.Is(err, ingest.ErrTickInProgress) {
		writeError(w, http.StatusConflict, "alert check in progress, retry")
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to reset alert state")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.events.Clear()
	w.WriteHeader(http.StatusNoContent)
}
