package tower

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var ts = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.Push(
		Alarm{ID: "a1", Label: "Crane wind limit", Severity: SeverityCritical, TS: ts, Scope: Scope{ProjectID: "P1", ProcessID: "PR9"}},
		Alarm{ID: "a2", Label: "Pump trip", Severity: SeverityWarn, TS: ts, Scope: Scope{ProjectID: "P1", SOWID: "S1"}},
		Alarm{ID: "a3", Label: "Logger offline", Severity: SeverityInfo, TS: ts},
	)
	return s
}

func TestAcknowledge_Idempotent(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	before := s.Summary().Count

	changed := s.Acknowledge("a2")
	if len(changed) != 1 || !changed[0].Acknowledged {
		t.Fatalf("first Acknowledge changed = %+v", changed)
	}
	if got := s.Summary().Count; got != before-1 {
		t.Errorf("count after first ack = %d, want %d", got, before-1)
	}

	if changed := s.Acknowledge("a2"); len(changed) != 0 {
		t.Errorf("second Acknowledge changed %d alarms, want 0", len(changed))
	}
	if got := s.Summary().Count; got != before-1 {
		t.Errorf("count after second ack = %d, want %d", got, before-1)
	}
}

func TestAcknowledge_BulkAndUnknown(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	changed := s.Acknowledge("a1", "missing", "a3", "a1")
	if len(changed) != 2 {
		t.Fatalf("changed = %d, want 2", len(changed))
	}
	sum := s.Summary()
	if sum.Count != 1 {
		t.Errorf("count = %d, want 1", sum.Count)
	}
	if sum.Severity == nil || *sum.Severity != SeverityWarn {
		t.Errorf("severity = %v, want warn", sum.Severity)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	s := New()
	if sum := s.Summary(); sum.Count != 0 || sum.Severity != nil {
		t.Errorf("empty summary = %+v", sum)
	}

	s = seeded(t)
	sum := s.Summary()
	if sum.Count != 3 || sum.Severity == nil || *sum.Severity != SeverityCritical {
		t.Errorf("summary = %+v, want 3 critical", sum)
	}

	s.Acknowledge("a1", "a2", "a3")
	if sum := s.Summary(); sum.Count != 0 || sum.Severity != nil {
		t.Errorf("summary after full ack = %+v", sum)
	}
}

func TestPush_UnknownSeverityStoredAsInfo(t *testing.T) {
	t.Parallel()

	s := New()
	s.Push(Alarm{ID: "a"}, Alarm{ID: "b", Severity: "major"})

	sum := s.Summary()
	if sum.Count != 2 || sum.Severity == nil || *sum.Severity != SeverityInfo {
		t.Errorf("summary = %+v, want 2 info", sum)
	}
	for _, id := range []string{"a", "b"} {
		if a, _ := s.Get(id); a.Severity != SeverityInfo {
			t.Errorf("%s severity = %q, want info", id, a.Severity)
		}
	}

	s.Push(Alarm{ID: "a", Severity: SeverityWarn})
	if a, _ := s.Get("a"); a.Severity != SeverityWarn {
		t.Errorf("refreshed severity = %q, want warn", a.Severity)
	}
}

func TestPush_DedupKeepsAcknowledged(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	s.Acknowledge("a1")

	s.Push(Alarm{ID: "a1", Label: "Crane wind limit (gusting)", Severity: SeverityCritical, TS: ts.Add(time.Minute)})

	if n := len(s.Ledger()); n != 3 {
		t.Errorf("ledger size = %d, want 3", n)
	}
	a, ok := s.Get("a1")
	if !ok {
		t.Fatal("a1 missing")
	}
	if !a.Acknowledged {
		t.Error("refresh cleared acknowledged flag")
	}
	if a.Label != "Crane wind limit (gusting)" {
		t.Errorf("label = %q, want refreshed", a.Label)
	}

	s.Push(Alarm{Label: "no id"})
	if n := len(s.Ledger()); n != 3 {
		t.Errorf("alarm without id was stored")
	}
}

func TestLedger_ArrivalOrderAndCopies(t *testing.T) {
	t.Parallel()

	s := New()
	s.Push(Alarm{ID: "z", Metadata: map[string]any{"category": "safety"}}, Alarm{ID: "a"})
	l := s.Ledger()
	if l[0].ID != "z" || l[1].ID != "a" {
		t.Errorf("ledger order = %s,%s, want z,a", l[0].ID, l[1].ID)
	}

	l[0].Metadata["category"] = "tampered"
	l[0].Acknowledged = true
	got, _ := s.Get("z")
	if got.Category() != "safety" || got.Acknowledged {
		t.Error("ledger returned shared state")
	}
}

func TestSubscribe_SynchronousNotification(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	var events []Event
	unsub := s.Subscribe(func(ev Event) {
		// listeners may read the store while being notified
		ev.Summary = s.Summary()
		events = append(events, ev)
	})

	s.Acknowledge("a1")
	if len(events) != 1 {
		t.Fatalf("events after ack = %d, want 1 before Acknowledge returned", len(events))
	}
	if events[0].Kind != EventAcknowledged || events[0].Alarms[0].ID != "a1" {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].Summary.Count != 2 {
		t.Errorf("summary seen by listener = %d, want 2", events[0].Summary.Count)
	}

	s.Acknowledge("a1")
	if len(events) != 1 {
		t.Errorf("no-op acknowledge notified listeners")
	}

	s.Push(Alarm{ID: "a4", Severity: SeverityWarn}, Alarm{ID: "a2", Severity: SeverityCritical})
	if len(events) != 3 {
		t.Fatalf("events after push = %d, want 3", len(events))
	}
	if events[1].Kind != EventArrived || events[2].Kind != EventUpdated {
		t.Errorf("push kinds = %s,%s", events[1].Kind, events[2].Kind)
	}

	unsub()
	unsub()
	s.Acknowledge("a4")
	if len(events) != 3 {
		t.Error("listener called after unsubscribe")
	}
}

func TestSubscribe_MultipleObservers(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	var badge, dock int
	s.Subscribe(func(ev Event) { badge = ev.Summary.Count })
	s.Subscribe(func(ev Event) { dock = ev.Summary.Count })

	s.Acknowledge("a1", "a2")
	if badge != 1 || dock != 1 {
		t.Errorf("badge=%d dock=%d, want 1/1", badge, dock)
	}
}

func TestMarkOrigin_LastWriteWins(t *testing.T) {
	t.Parallel()

	s := New()
	if _, ok := s.Origin(); ok {
		t.Error("new store should have no origin")
	}
	s.MarkOrigin(Origin{Path: "/programs/P1", Label: "Harbor Tunnel"})
	state := map[string]any{"projectId": "P2"}
	s.MarkOrigin(Origin{Path: "/alarms", State: state})
	state["projectId"] = "mutated"

	o, ok := s.Origin()
	if !ok {
		t.Fatal("origin missing")
	}
	if o.Path != "/alarms" || o.Label != "" {
		t.Errorf("origin = %+v, want the last one", o)
	}
	if o.State["projectId"] != "P2" {
		t.Errorf("origin state shared with caller: %v", o.State)
	}
}

func TestScopeSummary(t *testing.T) {
	t.Parallel()

	s := New()
	add := func(n int, sc Scope) {
		for i := 0; i < n; i++ {
			s.Push(Alarm{ID: fmt.Sprintf("%v-%d", sc, i), Severity: SeverityWarn, Scope: sc})
		}
	}
	add(5, Scope{ProjectID: "P1", ContractID: "C1", ProcessID: "PR9"})
	add(4, Scope{ProjectID: "P1", SOWID: "S2"})
	add(3, Scope{ProjectID: "P2"})
	add(2, Scope{Stage: "commissioning"})
	add(1, Scope{})

	got := s.ScopeSummary()
	want := []ScopeCount{
		{Level: "process", ID: "PR9", Count: 5},
		{Level: "sow", ID: "S2", Count: 4},
		{Level: "project", ID: "P2", Count: 3},
		{Level: "stage", ID: "commissioning", Count: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("ScopeSummary = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("group %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// acknowledged alarms drop out of the aggregation
	var ids []string
	for _, a := range s.Ledger() {
		if a.Scope.ProcessID == "PR9" {
			ids = append(ids, a.ID)
		}
	}
	s.Acknowledge(ids...)
	got = s.ScopeSummary()
	if got[0].ID != "S2" || got[len(got)-1].Level != GlobalScope {
		t.Errorf("after ack = %+v", got)
	}
}

func TestScope_Key(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sc        Scope
		wantLevel string
		wantID    string
	}{
		{Scope{ProjectID: "P", ContractID: "C", SOWID: "S", ProcessID: "X", Stage: "st"}, "process", "X"},
		{Scope{ProjectID: "P", ContractID: "C", SOWID: "S"}, "sow", "S"},
		{Scope{ProjectID: "P", ContractID: "C"}, "contract", "C"},
		{Scope{ProjectID: "P", Stage: "st"}, "project", "P"},
		{Scope{Stage: "st"}, "stage", "st"},
		{Scope{}, GlobalScope, GlobalScope},
	}
	for _, tt := range tests {
		level, id := tt.sc.Key()
		if level != tt.wantLevel || id != tt.wantID {
			t.Errorf("Key(%+v) = %s/%s, want %s/%s", tt.sc, level, id, tt.wantLevel, tt.wantID)
		}
	}
}

func TestSeverity(t *testing.T) {
	t.Parallel()

	if SeverityCritical.AlertSeverity() != "critical" || SeverityWarn.AlertSeverity() != "major" || SeverityInfo.AlertSeverity() != "minor" {
		t.Error("tower to alert severity mapping is wrong")
	}
	if _, ok := ParseSeverity("warn"); !ok {
		t.Error("ParseSeverity(warn) failed")
	}
	if _, ok := ParseSeverity("major"); ok {
		t.Error("ParseSeverity(major) should fail on the tower scale")
	}
}

func TestDefault_Singleton(t *testing.T) {
	t.Parallel()

	if Default() != Default() {
		t.Error("Default returned different instances")
	}
	if Default() == New() {
		t.Error("New should not return the process-wide store")
	}
}

func TestStore_Concurrent(t *testing.T) {
	t.Parallel()

	s := New()
	var notified int
	var mu sync.Mutex
	s.Subscribe(func(Event) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c-%d", i)
			s.Push(Alarm{ID: id, Severity: SeverityInfo})
			s.Acknowledge(id)
			_ = s.Summary()
			_ = s.ScopeSummary()
		}(i)
	}
	wg.Wait()

	if sum := s.Summary(); sum.Count != 0 {
		t.Errorf("count = %d, want 0", sum.Count)
	}
	if notified != 40 {
		t.Errorf("notified = %d, want 40", notified)
	}
}
