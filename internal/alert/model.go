// Package alert defines the raw alert record delivered by the alert feed and
// the ordered heuristics that classify it into a severity and workflow status.
package alert

import "time"

// Severity is the normalized severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Severities lists every severity from highest to lowest.
var Severities = []Severity{SeverityCritical, SeverityMajor, SeverityMinor}

// Rank orders severities, critical highest. Unknown values rank zero.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// ParseSeverity accepts a normalized severity name.
func ParseSeverity(s string) (Severity, bool) {
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, true
		}
	}
	return "", false
}

// StatusKey is a step of the alert workflow. The feed may move an alert between
// any two statuses; no transition graph is enforced.
type StatusKey string

const (
	StatusOpen         StatusKey = "open"
	StatusAcknowledged StatusKey = "acknowledged"
	StatusInProgress   StatusKey = "in_progress"
	StatusMitigated    StatusKey = "mitigated"
	StatusClosed       StatusKey = "closed"
)

// StatusKeys lists the workflow in order.
var StatusKeys = []StatusKey{StatusOpen, StatusAcknowledged, StatusInProgress, StatusMitigated, StatusClosed}

// Active reports whether the status still needs attention.
func (s StatusKey) Active() bool {
	return s != StatusMitigated && s != StatusClosed
}

// Item is a contributing factor attached to an alert.
type Item struct {
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

// Ref is a code/name pair for one scope level.
type Ref struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Scope is the structured scope an alert was raised against. Any level may be absent.
type Scope struct {
	Project  *Ref `json:"project,omitempty"`
	Contract *Ref `json:"contract,omitempty"`
	SOW      *Ref `json:"sow,omitempty"`
	Process  *Ref `json:"process,omitempty"`
}

// Impact estimates the consequences of leaving the alert unresolved.
type Impact struct {
	ScheduleDaysAtRisk    float64 `json:"scheduleDaysAtRisk"`
	CostExposureK         float64 `json:"costExposureK"`
	ProductivityLossHours float64 `json:"productivityLossHours"`
}

// Signals describes the sensor or system that raised the alert.
type Signals struct {
	Source      string  `json:"source"`
	Tag         string  `json:"tag"`
	LastReading any     `json:"lastReading,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Metadata is the nested, optional context of an alert.
type Metadata struct {
	Scope   *Scope   `json:"scope,omitempty"`
	Impact  *Impact  `json:"impact,omitempty"`
	Signals *Signals `json:"signals,omitempty"`
}

// Alert is a record as delivered by the feed. Severity and Status are free
// text and may be empty. Alerts are never modified after they are fetched.
type Alert struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id,omitempty"`
	Title          string     `json:"title"`
	Severity       string     `json:"severity,omitempty"`
	Status         string     `json:"status,omitempty"`
	Category       string     `json:"category,omitempty"`
	Location       string     `json:"location,omitempty"`
	Activity       string     `json:"activity,omitempty"`
	RootCause      string     `json:"root_cause,omitempty"`
	Recommendation string     `json:"recommendation,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	RaisedAt       time.Time  `json:"raised_at"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	Items          []Item     `json:"items,omitempty"`
	Metadata       Metadata   `json:"metadata"`
}

// Project returns the project the alert belongs to, falling back to the
// structured scope when the flat field is empty.
func (a *Alert) Project() string {
	if a.ProjectID != "" {
		return a.ProjectID
	}
	if a.Metadata.Scope != nil && a.Metadata.Scope.Project != nil {
		return a.Metadata.Scope.Project.Code
	}
	return ""
}

// Normalized pairs an alert with its derived severity and status.
type Normalized struct {
	Alert    *Alert    `json:"alert"`
	Severity Severity  `json:"severity"`
	Status   StatusKey `json:"status"`
}
