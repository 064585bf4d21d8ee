package tower

import (
	"time"

	"github.com/linnemanlabs/watchtower/internal/alert"
)

// Severity is the already-normalized severity of a tower alarm.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Rank orders severities, critical highest. Unknown values rank zero.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarn:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AlertSeverity maps the tower scale onto the alert scale.
func (s Severity) AlertSeverity() alert.Severity {
	switch s {
	case SeverityCritical:
		return alert.SeverityCritical
	case SeverityWarn:
		return alert.SeverityMajor
	default:
		return alert.SeverityMinor
	}
}

// ParseSeverity accepts a tower severity name.
func ParseSeverity(s string) (Severity, bool) {
	switch v := Severity(s); v {
	case SeverityInfo, SeverityWarn, SeverityCritical:
		return v, true
	}
	return "", false
}

// Scope locates an alarm. Any field may be empty.
type Scope struct {
	ProjectID  string `json:"projectId,omitempty"`
	ContractID string `json:"contractId,omitempty"`
	SOWID      string `json:"sowId,omitempty"`
	ProcessID  string `json:"processId,omitempty"`
	Stage      string `json:"stage,omitempty"`
}

// GlobalScope is the group key for alarms without any scope.
const GlobalScope = "global"

// Key returns the deepest available scope identifier and its level.
func (s Scope) Key() (level, id string) {
	switch {
	case s.ProcessID != "":
		return "process", s.ProcessID
	case s.SOWID != "":
		return "sow", s.SOWID
	case s.ContractID != "":
		return "contract", s.ContractID
	case s.ProjectID != "":
		return "project", s.ProjectID
	case s.Stage != "":
		return "stage", s.Stage
	default:
		return GlobalScope, GlobalScope
	}
}

// Alarm is a live tower entry. Only Acknowledge changes Acknowledged, and once
// set it stays set.
type Alarm struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Severity     Severity       `json:"severity"`
	TS           time.Time      `json:"ts"`
	Scope        Scope          `json:"scope"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Acknowledged bool           `json:"acknowledged"`
}

// Category returns metadata["category"] when it is a string.
func (a *Alarm) Category() string {
	if c, ok := a.Metadata["category"].(string); ok {
		return c
	}
	return ""
}

// Origin is the breadcrumb of the view an operator came from.
type Origin struct {
	Path  string         `json:"path"`
	Label string         `json:"label,omitempty"`
	State map[string]any `json:"state,omitempty"`
}

// Summary is derived from the unacknowledged alarms.
type Summary struct {
	Count int `json:"count"`
	// Severity is the highest severity present, nil when Count is zero.
	Severity *Severity `json:"severity"`
}

// ScopeCount is one group of the scope aggregation.
type ScopeCount struct {
	Level string `json:"level"`
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// EventKind says which mutation produced an Event.
type EventKind string

const (
	EventArrived      EventKind = "arrived"
	EventUpdated      EventKind = "updated"
	EventAcknowledged EventKind = "acknowledged"
)

// Event describes one mutation. Alarms holds copies of the affected entries.
type Event struct {
	Kind    EventKind `json:"kind"`
	Alarms  []Alarm   `json:"alarms"`
	Summary Summary   `json:"summary"`
}
