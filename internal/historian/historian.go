// Package historian records the audit trail of operator actions on alarms.
//
// Recording is advisory. Callers treat a failed Record as a logged side-effect
// failure and never undo the action it describes.
package historian

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/watchtower/internal/tower"
)

// Action is the kind of operator action an entry records.
type Action string

const (
	ActionAcknowledge Action = "acknowledge"
	ActionEscalate    Action = "escalate"
)

// Entry is one audit record.
type Entry struct {
	ID        string      `json:"id"`
	AlarmID   string      `json:"alarmId"`
	Action    Action      `json:"action"`
	Note      string      `json:"note,omitempty"`
	Scope     tower.Scope `json:"scope"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewEntry returns an entry with a fresh ULID.
func NewEntry(alarmID string, action Action, at time.Time) *Entry {
	return &Entry{
		ID:        ulid.Make().String(),
		AlarmID:   alarmID,
		Action:    action,
		CreatedAt: at.UTC(),
	}
}

// Sink stores and lists audit entries.
type Sink interface {
	Record(ctx context.Context, e *Entry) error
	// List returns the entries of one alarm, oldest first.
	List(ctx context.Context, alarmID string) ([]Entry, error)
}
