package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.store.StoredAlerts(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list stored alerts")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("wxalerts.alerts", len(alerts)))
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("wxalerts.alert.id", id))

	al, ok, err := a.store.FindStored(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get stored alert", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("wxalerts.alert.severity", string(al.Severity)))
	writeJSON(w, http.StatusOK, al)
}
