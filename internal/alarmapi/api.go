// Package alarmapi exposes the alarm center and the tower over JSON HTTP.
package alarmapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/watchtower/internal/dashboard"
	"github.com/linnemanlabs/watchtower/internal/historian"
	"github.com/linnemanlabs/watchtower/internal/playbook"
	"github.com/linnemanlabs/watchtower/internal/scope"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

// Service defines the operations alarmapi needs.
type Service interface {
	View(ctx context.Context, q dashboard.Query) (*dashboard.View, error)
	Scope() dashboard.ScopeView
	SetScope(sel scope.Selection) dashboard.ScopeView
	Playbook(id string) (playbook.Definition, bool)
	Playbooks() []playbook.Definition

	Tower() dashboard.TowerView
	Ingest(alarms ...tower.Alarm) []string
	Acknowledge(ctx context.Context, ids ...string) dashboard.AckResult
	TowerPlaybook(id string) (playbook.Definition, bool)
	History(ctx context.Context, alarmID string) ([]historian.Entry, error)
	MarkOrigin(o tower.Origin)
	Origin() (tower.Origin, bool)
}

// Subscriber is the tower notification source behind the event stream.
type Subscriber interface {
	Subscribe(fn tower.Listener) (unsubscribe func())
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    Service
	events Subscriber
}

// New creates a new API handler.
func New(logger log.Logger, svc Service, events Subscriber) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("dashboard service is required"))
	}
	if events == nil {
		panic(xerrors.New("tower subscriber is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		events: events,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/alarms", a.handleView)
		r.Get("/scope", a.handleGetScope)
		r.Put("/scope", a.handleSetScope)
		r.Get("/playbooks", a.handleListPlaybooks)
		r.Get("/playbooks/{id}", a.handleGetPlaybook)

		r.Route("/tower", func(r chi.Router) {
			r.Get("/", a.handleTower)
			r.Get("/stream", a.handleStream)
			r.Post("/alarms", a.handleIngest)
			r.Post("/ack", a.handleAcknowledge)
			r.Get("/alarms/{id}/playbook", a.handleTowerPlaybook)
			r.Get("/alarms/{id}/history", a.handleHistory)
			r.Get("/origin", a.handleGetOrigin)
			r.Post("/origin", a.handleMarkOrigin)
		})
	})
}

func (a *API) handleView(w http.ResponseWriter, r *http.Request) {
	q := dashboard.Query{
		Severity: r.URL.Query().Get("severity"),
		FocusID:  r.URL.Query().Get("focus"),
	}

	v, err := a.svc.View(r.Context(), q)
	if errors.Is(err, dashboard.ErrInvalidSeverity) {
		writeError(w, http.StatusBadRequest, "invalid severity")
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to compose alarm view")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("watchtower.scope.label", v.Label),
		attribute.Int("watchtower.alerts.total", v.Stats.Total),
	)
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleGetScope(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Scope())
}

func (a *API) handleSetScope(w http.ResponseWriter, r *http.Request) {
	var sel scope.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	writeJSON(w, http.StatusOK, a.svc.SetScope(sel))
}

func (a *API) handleListPlaybooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"playbooks": a.svc.Playbooks(),
		"default":   playbook.Default,
	})
}

func (a *API) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, ok := a.svc.Playbook(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, pb)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
