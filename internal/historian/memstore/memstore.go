// Package memstore provides an in-memory implementation of historian.Sink.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/linnemanlabs/watchtower/internal/historian"
)

// Store holds entries in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	byAlarm map[string][]historian.Entry // alarm ID -> entries in arrival order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{byAlarm: make(map[string][]historian.Entry)}
}

// Record stores a copy of e.
func (s *Store) Record(_ context.Context, e *historian.Entry) error {
	if e == nil || e.AlarmID == "" {
		return errors.New("entry has no alarm id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAlarm[e.AlarmID] = append(s.byAlarm[e.AlarmID], *e)
	return nil
}

// List returns copies of the alarm's entries, oldest first.
func (s *Store) List(_ context.Context, alarmID string) ([]historian.Entry, error) {
	s.mu.RLock()
	out := append([]historian.Entry(nil), s.byAlarm[alarmID]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
