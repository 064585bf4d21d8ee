package alarmapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/watchtower/internal/alert"
	"github.com/linnemanlabs/watchtower/internal/dashboard"
	"github.com/linnemanlabs/watchtower/internal/historian/memstore"
	"github.com/linnemanlabs/watchtower/internal/poller"
	"github.com/linnemanlabs/watchtower/internal/scope"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

var now = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

type fakeSource struct {
	mu   sync.Mutex
	snap poller.Snapshot
}

func (f *fakeSource) Snapshot() poller.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) SetScope(sel scope.Selection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Selection = sel
}

func newTestRouter(t *testing.T) (chi.Router, *tower.Store, *dashboard.Service) {
	t.Helper()
	src := &fakeSource{snap: poller.Snapshot{
		Selection: scope.Selection{ProjectID: "P1"},
		Hierarchy: scope.Hierarchy{Projects: []scope.Project{{
			Code: "P1", Name: "Harbor Tunnel",
			Contracts: []scope.Contract{{Code: "C1", Name: "Civil"}},
		}}},
		Alerts: []alert.Alert{
			{ID: "A1", ProjectID: "P1", Severity: "critical", Category: "Safety", RaisedAt: now},
			{ID: "A2", ProjectID: "P1", Severity: "warning", RaisedAt: now.Add(-time.Hour)},
		},
		Loaded: true,
	}}
	st := tower.New()
	svc := dashboard.New(dashboard.Config{
		Source:  src,
		Tower:   st,
		History: memstore.New(),
		Logger:  log.Nop(),
		Now:     func() time.Time { return now },
	})
	r := chi.NewRouter()
	New(nil, svc, st).RegisterRoutes(r)
	return r, st, svc
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	st := tower.New()
	svc := dashboard.New(dashboard.Config{Source: &fakeSource{}, Tower: st})
	api := New(nil, svc, st)
	if api.logger == nil {
		t.Fatal("New(nil, ...) left logger nil; expected Nop logger")
	}
}

func TestNew_Panics(t *testing.T) {
	t.Parallel()

	st := tower.New()
	svc := dashboard.New(dashboard.Config{Source: &fakeSource{}, Tower: st})
	tests := map[string]func(){
		"nil service":    func() { New(nil, nil, st) },
		"nil subscriber": func() { New(nil, svc, nil) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			fn()
		})
	}
}

// Routing

func TestRoutes_Status(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestRouter(t)
	st.Push(tower.Alarm{ID: "T1", Severity: tower.SeverityCritical, Metadata: map[string]any{"category": "safety"}})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"view", http.MethodGet, "/api/v1/alarms", "", http.StatusOK},
		{"view bad severity", http.MethodGet, "/api/v1/alarms?severity=sev1", "", http.StatusBadRequest},
		{"view wrong method", http.MethodPost, "/api/v1/alarms", "", http.StatusMethodNotAllowed},
		{"get scope", http.MethodGet, "/api/v1/scope", "", http.StatusOK},
		{"put scope bad json", http.MethodPut, "/api/v1/scope", "{bad", http.StatusBadRequest},
		{"playbooks", http.MethodGet, "/api/v1/playbooks", "", http.StatusOK},
		{"playbook", http.MethodGet, "/api/v1/playbooks/sensor-fault", "", http.StatusOK},
		{"default playbook", http.MethodGet, "/api/v1/playbooks/default-triage", "", http.StatusOK},
		{"missing playbook", http.MethodGet, "/api/v1/playbooks/nope", "", http.StatusNotFound},
		{"tower", http.MethodGet, "/api/v1/tower", "", http.StatusOK},
		{"ingest bad json", http.MethodPost, "/api/v1/tower/alarms", "{bad", http.StatusBadRequest},
		{"ingest bad severity", http.MethodPost, "/api/v1/tower/alarms", `{"alarms":[{"severity":"major"}]}`, http.StatusBadRequest},
		{"ingest missing severity", http.MethodPost, "/api/v1/tower/alarms", `{"alarms":[{"id":"T9","label":"no severity"}]}`, http.StatusBadRequest},
		{"ack without ids", http.MethodPost, "/api/v1/tower/ack", `{"ids":[]}`, http.StatusBadRequest},
		{"tower playbook", http.MethodGet, "/api/v1/tower/alarms/T1/playbook", "", http.StatusOK},
		{"tower playbook missing", http.MethodGet, "/api/v1/tower/alarms/nope/playbook", "", http.StatusNotFound},
		{"history", http.MethodGet, "/api/v1/tower/alarms/T1/history", "", http.StatusOK},
		{"origin before mark", http.MethodGet, "/api/v1/tower/origin", "", http.StatusNotFound},
		{"origin without path", http.MethodPost, "/api/v1/tower/origin", `{"label":"x"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, r, tt.method, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d (body %q)", tt.method, tt.target, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestIngest_RejectedBatchStoresNothing(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestRouter(t)
	rec := do(t, r, http.MethodPost, "/api/v1/tower/alarms",
		`{"alarms":[{"id":"T1","severity":"critical"},{"id":"T2"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if n := len(st.Ledger()); n != 0 {
		t.Errorf("ledger has %d alarms, want 0", n)
	}
	if sum := st.Summary(); sum.Count != 0 || sum.Severity != nil {
		t.Errorf("summary = %+v", sum)
	}
}

func TestView(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/api/v1/alarms?severity=critical&focus=A1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	v := decode[struct {
		Label    string `json:"label"`
		Severity string `json:"severity"`
		Stats    struct {
			Total  int `json:"total"`
			Active []struct {
				Severity string `json:"severity"`
			} `json:"active"`
		} `json:"stats"`
		Playbook struct {
			ID string `json:"id"`
		} `json:"playbook"`
	}](t, rec)

	if v.Label != "Project · Harbor Tunnel" {
		t.Errorf("label = %q", v.Label)
	}
	if v.Stats.Total != 2 || len(v.Stats.Active) != 1 || v.Stats.Active[0].Severity != "critical" {
		t.Errorf("stats = %+v", v.Stats)
	}
	if v.Playbook.ID != "safety-critical-stop" {
		t.Errorf("playbook = %q", v.Playbook.ID)
	}
}

func TestSetScope(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)
	rec := do(t, r, http.MethodPut, "/api/v1/scope", `{"projectId":"P1","contractId":"C1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[dashboard.ScopeView](t, rec)
	if got.Label != "Contract · Civil" || got.Selection.ContractID != "C1" {
		t.Errorf("scope = %+v", got)
	}

	got = decode[dashboard.ScopeView](t, do(t, r, http.MethodGet, "/api/v1/scope", ""))
	if got.Selection.ContractID != "C1" {
		t.Errorf("GET scope = %+v", got)
	}
}

func TestIngestAndAcknowledge(t *testing.T) {
	t.Parallel()

	r, st, svc := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/tower/alarms",
		`{"alarms":[{"label":"Gas detector high","severity":"critical","scope":{"processId":"PR9"}},{"id":"T2","label":"Pump trip","severity":"warn"}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d", rec.Code)
	}
	accepted := decode[struct {
		Accepted []string `json:"accepted"`
	}](t, rec).Accepted
	if len(accepted) != 2 || accepted[0] == "" || accepted[1] != "T2" {
		t.Fatalf("accepted = %v", accepted)
	}

	rec = do(t, r, http.MethodPost, "/api/v1/tower/ack", `{"ids":["T2","T2"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ack status = %d", rec.Code)
	}
	res := decode[dashboard.AckResult](t, rec)
	if len(res.Acknowledged) != 1 || res.Summary.Count != 1 {
		t.Errorf("ack result = %+v", res)
	}
	if sev := res.Summary.Severity; sev == nil || *sev != tower.SeverityCritical {
		t.Errorf("summary severity = %v", sev)
	}

	svc.Wait()
	hist := decode[struct {
		Entries []struct {
			Action string `json:"action"`
		} `json:"entries"`
	}](t, do(t, r, http.MethodGet, "/api/v1/tower/alarms/T2/history", ""))
	if len(hist.Entries) != 1 || hist.Entries[0].Action != "acknowledge" {
		t.Errorf("history = %+v", hist)
	}

	view := decode[dashboard.TowerView](t, do(t, r, http.MethodGet, "/api/v1/tower", ""))
	if len(view.Alarms) != 2 || view.Summary.Count != 1 || len(view.Scopes) != 1 || view.Scopes[0].ID != "PR9" {
		t.Errorf("tower = %+v", view)
	}
	if a, _ := st.Get("T2"); !a.Acknowledged {
		t.Error("T2 not acknowledged in store")
	}
}

func TestOrigin(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)
	if rec := do(t, r, http.MethodPost, "/api/v1/tower/origin", `{"path":"/programs/P1","label":"Harbor Tunnel"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("mark status = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/api/v1/tower/origin", `{"path":"/alarms","state":{"severity":"critical"}}`); rec.Code != http.StatusNoContent {
		t.Fatalf("mark status = %d", rec.Code)
	}

	o := decode[tower.Origin](t, do(t, r, http.MethodGet, "/api/v1/tower/origin", ""))
	if o.Path != "/alarms" || o.State["severity"] != "critical" {
		t.Errorf("origin = %+v", o)
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestRouter(t)
	st.Push(tower.Alarm{ID: "T1", Severity: tower.SeverityWarn})

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/tower/stream", http.NoBody)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	next := func() tower.Event {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev tower.Event
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return ev
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return tower.Event{}
	}

	first := next()
	if first.Kind != kindSnapshot || first.Summary.Count != 1 {
		t.Errorf("first event = %+v", first)
	}

	st.Acknowledge("T1")
	ev := next()
	if ev.Kind != tower.EventAcknowledged || ev.Summary.Count != 0 || ev.Summary.Severity != nil {
		t.Errorf("ack event = %+v", ev)
	}
}
