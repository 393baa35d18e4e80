// Package api serves alert history, effect events and manual controls to the UI.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/authmw"
	"github.com/linnemanlabs/wxalerts/internal/effects"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

// AlertStore is the read subset of ingest.Store the API needs.
type AlertStore interface {
	StoredAlerts(ctx context.Context) ([]alert.Alert, error)
	FindStored(ctx context.Context, id string) (*alert.Alert, bool, error)
}

// Checker triggers and reports on poll ticks. Reset goes through it so it
// never overlaps a running tick.
type Checker interface {
	Kick()
	Phase() ingest.Phase
	Reset(ctx context.Context) error
}

// EventLog exposes recorded effect requests.
type EventLog interface {
	After(cursor string) []effects.Event
	LatestUrgent() (effects.Event, bool)
	Clear()
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	store   AlertStore
	checker Checker
	events  EventLog
	token   string
}

// New creates a new API handler. A non-empty token guards the mutating routes.
func New(logger log.Logger, store AlertStore, checker Checker, events EventLog, token string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if store == nil {
		panic(xerrors.New("alert store is required"))
	}
	if checker == nil {
		panic(xerrors.New("checker is required"))
	}
	if events == nil {
		panic(xerrors.New("event log is required"))
	}
	return &API{
		logger:  logger,
		store:   store,
		checker: checker,
		events:  events,
		token:   token,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/alerts", a.handleListAlerts)
		r.Get("/alerts/{id}", a.handleGetAlert)
		r.Get("/urgent", a.handleUrgent)
		r.Get("/events", a.handleEvents)
		r.Get("/status", a.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(authmw.BearerToken(a.token))
			r.Post("/check", a.handleCheck)
			r.Post("/reset", a.handleReset)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
