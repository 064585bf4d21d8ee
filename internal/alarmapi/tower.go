package alarmapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/watchtower/internal/historian"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

const (
	streamBuffer    = 16
	streamHeartbeat = 15 * time.Second
)

// kindSnapshot marks the event sent when a stream client connects.
const kindSnapshot tower.EventKind = "snapshot"

func (a *API) handleTower(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Tower())
}

type ingestRequest struct {
	Alarms []tower.Alarm `json:"alarms"`
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	for i, al := range req.Alarms {
		if _, ok := tower.ParseSeverity(string(al.Severity)); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("alarm %d: invalid severity %q", i, al.Severity))
			return
		}
	}

	ids := a.svc.Ingest(req.Alarms...)
	a.logger.Info(r.Context(), "tower alarms ingested", "count", len(ids))
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": ids})
}

type ackRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	res := a.svc.Acknowledge(r.Context(), req.IDs...)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.StringSlice("watchtower.alarm.ids", req.IDs),
		attribute.Int("watchtower.tower.unacknowledged", res.Summary.Count),
	)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleTowerPlaybook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("watchtower.alarm.id", id))

	pb, ok := a.svc.TowerPlaybook(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, pb)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := a.svc.History(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list history", "alarm_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []historian.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleGetOrigin(w http.ResponseWriter, _ *http.Request) {
	o, ok := a.svc.Origin()
	if !ok {
		writeError(w, http.StatusNotFound, "no origin recorded")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) handleMarkOrigin(w http.ResponseWriter, r *http.Request) {
	var o tower.Origin
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil || o.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	a.svc.MarkOrigin(o)
	w.WriteHeader(http.StatusNoContent)
}

// handleStream sends the tower summary as server-sent events: one event on
// connect and one per ledger notification. Notifications are dropped while the
// client buffer is full; every event carries the full summary.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := make(chan tower.Event, streamBuffer)
	unsubscribe := a.events.Subscribe(func(ev tower.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, tower.Event{Kind: kindSnapshot, Summary: a.svc.Tower().Summary}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				a.logger.Warn(r.Context(), "tower stream write failed", "err", err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev tower.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: summary\ndata: %s\n\n", data)
	return err
}
