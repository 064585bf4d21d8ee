package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchAlerts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":"A1","title":"Crane wind","severity":"Critical","raised_at":"2026-03-10T09:00:00Z","metadata":{"scope":{"process":{"code":"PR9","name":"Lift"}}}}]`},
		{"envelope", `{"alerts":[{"id":"A1","title":"Crane wind","severity":"Critical","raised_at":"2026-03-10T09:00:00Z","metadata":{"scope":{"process":{"code":"PR9","name":"Lift"}}}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/alerts" {
					t.Errorf("path = %q", r.URL.Path)
				}
				if got := r.URL.Query().Get("project_id"); got != "P1" {
					t.Errorf("project_id = %q, want P1", got)
				}
				if got := r.Header.Get("X-Scope-OrgID"); got != "tenant-a" {
					t.Errorf("X-Scope-OrgID = %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			alerts, err := New(srv.URL, "tenant-a").FetchAlerts(context.Background(), "P1")
			if err != nil {
				t.Fatalf("FetchAlerts: %v", err)
			}
			if len(alerts) != 1 {
				t.Fatalf("len = %d, want 1", len(alerts))
			}
			a := alerts[0]
			if a.ID != "A1" || a.Severity != "Critical" || a.RaisedAt.IsZero() {
				t.Errorf("alert = %+v", a)
			}
			if a.Metadata.Scope == nil || a.Metadata.Scope.Process == nil || a.Metadata.Scope.Process.Code != "PR9" {
				t.Errorf("metadata scope not decoded: %+v", a.Metadata)
			}
		})
	}
}

func TestFetchAlerts_NoProjectOmitsParam(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("project_id") {
			t.Error("project_id should be omitted")
		}
		if r.Header.Get("X-Scope-OrgID") != "" {
			t.Error("tenant header should be omitted")
		}
		_, _ = fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	alerts, err := New(srv.URL, "").FetchAlerts(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchAlerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("len = %d, want 0", len(alerts))
	}
}

func TestFetchAlerts_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		substr string
	}{
		{"server error", http.StatusBadGateway, "upstream down", "502"},
		{"bad json", http.StatusOK, "{not json", "decode alerts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, "").FetchAlerts(context.Background(), "P1")
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("err = %v, want substring %q", err, tt.substr)
			}
		})
	}
}

func TestFetchAlerts_ErrorBodyTruncated(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, strings.Repeat("x", 4096))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").FetchAlerts(context.Background(), "P1")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > errBodyLimit+100 {
		t.Errorf("error message not truncated: %d bytes", len(err.Error()))
	}
}

func TestFetchAlerts_Cancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(srv.URL, "").FetchAlerts(ctx, "P1"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFetchHierarchy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/base/api/progress/hierarchy" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = fmt.Fprint(w, `{"projects":[{"code":"P1","name":"Harbor Tunnel","contracts":[{"code":"C1","name":"Civil","sows":[{"code":"S1","name":"Boring","processes":[{"code":"PR9","name":"Segment lift"}]}]}]}]}`)
	}))
	defer srv.Close()

	h, err := New(srv.URL+"/base", "").FetchHierarchy(context.Background())
	if err != nil {
		t.Fatalf("FetchHierarchy: %v", err)
	}
	if len(h.Projects) != 1 || h.Projects[0].Contracts[0].SOWs[0].Processes[0].Name != "Segment lift" {
		t.Errorf("hierarchy = %+v", h)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	t.Parallel()

	var gotPath, gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL, "").AcknowledgeAlert(context.Background(), "A 1"); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/alerts/A 1/acknowledge" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotBody != "{}" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestAcknowledgeAlert_EscapesID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id      string
		wantRaw string
	}{
		{"../../admin/purge", "/api/alerts/..%2F..%2Fadmin%2Fpurge/acknowledge"},
		{"A/1", "/api/alerts/A%2F1/acknowledge"},
		{"A?x=1#f", "/api/alerts/A%3Fx=1%23f/acknowledge"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()

			var gotRaw, gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRaw, gotQuery = r.URL.EscapedPath(), r.URL.RawQuery
				w.WriteHeader(http.StatusNoContent)
			}))
			defer srv.Close()

			if err := New(srv.URL+"/base", "").AcknowledgeAlert(context.Background(), tt.id); err != nil {
				t.Fatalf("AcknowledgeAlert: %v", err)
			}
			if want := "/base" + tt.wantRaw; gotRaw != want {
				t.Errorf("path = %q, want %q", gotRaw, want)
			}
			if gotQuery != "" {
				t.Errorf("query = %q, want none", gotQuery)
			}
		})
	}
}

func TestAcknowledgeAlert_RejectsDotIDs(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	for _, id := range []string{"", ".", ".."} {
		if err := c.AcknowledgeAlert(context.Background(), id); err == nil {
			t.Errorf("AcknowledgeAlert(%q) = nil, want error", id)
		}
	}
	if hits != 0 {
		t.Errorf("backend hit %d times, want 0", hits)
	}
}

func TestAcknowledgeAlert_Failure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	defer srv.Close()

	err := New(srv.URL, "").AcknowledgeAlert(context.Background(), "A1")
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Errorf("err = %v, want 409", err)
	}
}

func TestInvalidEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := New("://bad", "").FetchHierarchy(context.Background()); err == nil {
		t.Error("expected error for invalid endpoint")
	}
}
