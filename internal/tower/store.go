// Package tower keeps the process-wide live alarm ledger shared by every view.
//
// The ledger is deduplicated by alarm id and lives in memory only. Every
// mutation notifies all subscribers synchronously before the mutating call
// returns.
package tower

import (
	"maps"
	"sort"
	"sync"
)

// topScopes is the number of groups returned by ScopeSummary.
const topScopes = 4

// Listener observes ledger mutations. Listeners run on the mutating goroutine
// and may read the store, but must not mutate it.
type Listener func(Event)

// Store is the tower ledger. The zero value is not usable; call New.
type Store struct {
	// writeMu serialises mutation and notification so listeners see events in order.
	writeMu sync.Mutex

	mu     sync.RWMutex
	order  []string
	alarms map[string]*Alarm
	origin *Origin

	listenerMu sync.RWMutex
	nextID     int
	listeners  map[int]Listener
}

// New returns an empty store.
func New() *Store {
	return &Store{
		alarms:    make(map[string]*Alarm),
		listeners: make(map[int]Listener),
	}
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default returns the process-wide store. Code that needs a private instance,
// such as tests, should call New and inject it.
func Default() *Store {
	defaultOnce.Do(func() { defaultStore = New() })
	return defaultStore
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			delete(s.listeners, id)
			s.listenerMu.Unlock()
		})
	}
}

func (s *Store) notify(ev Event) {
	s.listenerMu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Push adds new alarms and refreshes known ones. A refresh replaces label,
// severity, timestamp, scope and metadata but never clears Acknowledged.
// Alarms with an empty id are ignored and an unknown severity is stored as
// info. Listeners get one event for new alarms and one for refreshed alarms.
func (s *Store) Push(alarms ...Alarm) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var arrived, updated []Alarm

	s.mu.Lock()
	for _, in := range alarms {
		if in.ID == "" {
			continue
		}
		if _, ok := ParseSeverity(string(in.Severity)); !ok {
			in.Severity = SeverityInfo
		}
		in.Metadata = maps.Clone(in.Metadata)
		if cur, ok := s.alarms[in.ID]; ok {
			in.Acknowledged = cur.Acknowledged || in.Acknowledged
			*cur = in
			updated = append(updated, copyAlarm(cur))
			continue
		}
		a := in
		s.alarms[a.ID] = &a
		s.order = append(s.order, a.ID)
		arrived = append(arrived, copyAlarm(&a))
	}
	sum := s.summaryLocked()
	s.mu.Unlock()

	if len(arrived) > 0 {
		s.notify(Event{Kind: EventArrived, Alarms: arrived, Summary: sum})
	}
	if len(updated) > 0 {
		s.notify(Event{Kind: EventUpdated, Alarms: updated, Summary: sum})
	}
}

// Acknowledge marks the given alarms acknowledged. Unknown and already
// acknowledged ids are ignored. It returns the alarms that changed.
func (s *Store) Acknowledge(ids ...string) []Alarm {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var changed []Alarm

	s.mu.Lock()
	for _, id := range ids {
		a, ok := s.alarms[id]
		if !ok || a.Acknowledged {
			continue
		}
		a.Acknowledged = true
		changed = append(changed, copyAlarm(a))
	}
	sum := s.summaryLocked()
	s.mu.Unlock()

	if len(changed) > 0 {
		s.notify(Event{Kind: EventAcknowledged, Alarms: changed, Summary: sum})
	}
	return changed
}

// Get returns a copy of one alarm.
func (s *Store) Get(id string) (Alarm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alarms[id]
	if !ok {
		return Alarm{}, false
	}
	return copyAlarm(a), true
}

// Ledger returns copies of every alarm in arrival order.
func (s *Store) Ledger() []Alarm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alarm, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyAlarm(s.alarms[id]))
	}
	return out
}

// MarkOrigin records where the operator came from, replacing any earlier origin.
func (s *Store) MarkOrigin(o Origin) {
	o.State = maps.Clone(o.State)
	s.mu.Lock()
	s.origin = &o
	s.mu.Unlock()
}

// Origin returns the last recorded origin.
func (s *Store) Origin() (Origin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.origin == nil {
		return Origin{}, false
	}
	o := *s.origin
	o.State = maps.Clone(o.State)
	return o, true
}

// Summary counts unacknowledged alarms and reports their highest severity.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked()
}

func (s *Store) summaryLocked() Summary {
	var (
		sum  Summary
		best Severity
	)
	for _, a := range s.alarms {
		if a.Acknowledged {
			continue
		}
		sum.Count++
		if a.Severity.Rank() > best.Rank() {
			best = a.Severity
		}
	}
	if sum.Count > 0 && best != "" {
		sum.Severity = &best
	}
	return sum
}

// ScopeSummary groups unacknowledged alarms by their deepest scope identifier
// and returns the largest groups first. Ties are ordered by level then id.
func (s *Store) ScopeSummary() []ScopeCount {
	s.mu.RLock()
	counts := make(map[[2]string]int)
	for _, a := range s.alarms {
		if a.Acknowledged {
			continue
		}
		level, id := a.Scope.Key()
		counts[[2]string{level, id}]++
	}
	s.mu.RUnlock()

	out := make([]ScopeCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, ScopeCount{Level: k[0], ID: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topScopes {
		out = out[:topScopes]
	}
	return out
}

func copyAlarm(a *Alarm) Alarm {
	cp := *a
	cp.Metadata = maps.Clone(a.Metadata)
	return cp
}
