// Package dashboard composes the alarm center view from the polled snapshot,
// the scope resolver, the normalizer, the statistics engine and the playbook
// library, and runs the acknowledge action against the tower and the
// best-effort collaborators.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/watchtower/internal/alert"
	"github.com/linnemanlabs/watchtower/internal/historian"
	"github.com/linnemanlabs/watchtower/internal/playbook"
	"github.com/linnemanlabs/watchtower/internal/poller"
	"github.com/linnemanlabs/watchtower/internal/scope"
	"github.com/linnemanlabs/watchtower/internal/stats"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

// Collaborator names used in logs and side-effect failure metrics.
const (
	CollaboratorFeed      = "feed"
	CollaboratorHistorian = "historian"
)

// ErrInvalidSeverity is returned by View for an unknown severity filter.
var ErrInvalidSeverity = errors.New("invalid severity filter")

// Source provides the polled snapshot and accepts scope changes.
type Source interface {
	Snapshot() poller.Snapshot
	SetScope(sel scope.Selection)
}

// Acknowledger is the remote acknowledgment endpoint.
type Acknowledger interface {
	AcknowledgeAlert(ctx context.Context, id string) error
}

// Hooks receives service telemetry. Nil fields are skipped.
type Hooks struct {
	OnAcknowledge       func(changed int)
	OnSideEffectFailure func(collaborator string)
}

// Config holds the service dependencies. Source and Tower are required.
type Config struct {
	Source     Source
	Tower      *tower.Store
	Playbooks  *playbook.Library
	Remote     Acknowledger
	History    historian.Sink
	Classifier *alert.Classifier
	Logger     log.Logger
	Hooks      Hooks
	Location   *time.Location
	Now        func() time.Time
}

// Service is the business boundary the presentation layer talks to.
type Service struct {
	source     Source
	tower      *tower.Store
	playbooks  *playbook.Library
	remote     Acknowledger
	history    historian.Sink
	classifier alert.Classifier
	logger     log.Logger
	hooks      Hooks
	loc        *time.Location
	now        func() time.Time

	pending sync.WaitGroup
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Source == nil {
		panic(xerrors.New("alert source is required"))
	}
	if cfg.Tower == nil {
		panic(xerrors.New("tower store is required"))
	}
	if cfg.Playbooks == nil {
		cfg.Playbooks = playbook.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	classifier := alert.DefaultClassifier
	if cfg.Classifier != nil {
		classifier = *cfg.Classifier
	}
	return &Service{
		source:     cfg.Source,
		tower:      cfg.Tower,
		playbooks:  cfg.Playbooks,
		remote:     cfg.Remote,
		history:    cfg.History,
		classifier: classifier,
		logger:     cfg.Logger,
		hooks:      cfg.Hooks,
		loc:        cfg.Location,
		now:        cfg.Now,
	}
}

// Query selects what View focuses on.
type Query struct {
	// Severity is stats.FilterAll (or empty) or a severity name.
	Severity string
	// FocusID is the alert whose playbook is resolved. Empty means none.
	FocusID string
}

// View is the alarm center for the current scope.
type View struct {
	Selection    scope.Selection     `json:"selection"`
	Names        scope.Names         `json:"names"`
	Label        string              `json:"label"`
	Severity     string              `json:"severity"`
	Stats        stats.Summary       `json:"stats"`
	Focus        *alert.Normalized   `json:"focus,omitempty"`
	Playbook     playbook.Definition `json:"playbook"`
	Tower        tower.Summary       `json:"tower"`
	FetchedAt    time.Time           `json:"fetchedAt,omitzero"`
	Err          string              `json:"error,omitempty"`
	HierarchyErr string              `json:"hierarchyError,omitempty"`
	Refreshing   bool                `json:"refreshing"`
	Loaded       bool                `json:"loaded"`
}

// View recomputes the whole alarm center from the current snapshot.
func (s *Service) View(_ context.Context, q Query) (*View, error) {
	filter := q.Severity
	if filter == "" {
		filter = stats.FilterAll
	}
	if _, ok := alert.ParseSeverity(filter); !ok && filter != stats.FilterAll {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, q.Severity)
	}

	snap := s.source.Snapshot()
	scoped := alert.FilterByScope(snap.Alerts, snap.Selection)
	ns := s.classifier.Normalize(scoped)
	names, label := scope.Label(snap.Selection, snap.Hierarchy)

	v := &View{
		Selection:    snap.Selection,
		Names:        names,
		Label:        label,
		Severity:     filter,
		Stats:        stats.Compute(ns, stats.Options{Now: s.now(), Location: s.loc, Severity: filter}),
		Playbook:     playbook.Default,
		Tower:        s.tower.Summary(),
		FetchedAt:    snap.FetchedAt,
		Err:          snap.Err,
		HierarchyErr: snap.HierarchyErr,
		Refreshing:   snap.Refreshing,
		Loaded:       snap.Loaded,
	}
	if q.FocusID != "" {
		for i := range ns {
			if ns[i].Alert.ID == q.FocusID {
				v.Focus = &ns[i]
				v.Playbook = s.playbooks.Resolve(ns[i].Alert)
				break
			}
		}
	}
	return v, nil
}

// ScopeView is the current selection with its resolved labels.
type ScopeView struct {
	Selection scope.Selection `json:"selection"`
	Names     scope.Names     `json:"names"`
	Label     string          `json:"label"`
}

// Scope resolves the current selection.
func (s *Service) Scope() ScopeView {
	snap := s.source.Snapshot()
	names, label := scope.Label(snap.Selection, snap.Hierarchy)
	return ScopeView{Selection: snap.Selection, Names: names, Label: label}
}

// SetScope switches the watched selection and returns its resolved labels.
func (s *Service) SetScope(sel scope.Selection) ScopeView {
	s.source.SetScope(sel)
	return s.Scope()
}

// Playbook looks up a library entry by id.
func (s *Service) Playbook(id string) (playbook.Definition, bool) {
	return s.playbooks.Get(id)
}

// Playbooks lists the library in match order.
func (s *Service) Playbooks() []playbook.Definition {
	return s.playbooks.All()
}

// TowerView is the tower ledger with its derived summaries.
type TowerView struct {
	Alarms  []tower.Alarm      `json:"alarms"`
	Summary tower.Summary      `json:"summary"`
	Scopes  []tower.ScopeCount `json:"scopes"`
}

// Tower returns the current ledger.
func (s *Service) Tower() TowerView {
	return TowerView{
		Alarms:  s.tower.Ledger(),
		Summary: s.tower.Summary(),
		Scopes:  s.tower.ScopeSummary(),
	}
}

// Ingest pushes alarms into the tower. Alarms without an id get a ULID and
// alarms without a timestamp are stamped now. It returns the stored ids.
func (s *Service) Ingest(alarms ...tower.Alarm) []string {
	alarms = append([]tower.Alarm(nil), alarms...)
	ids := make([]string, len(alarms))
	for i := range alarms {
		if alarms[i].ID == "" {
			alarms[i].ID = ulid.Make().String()
		}
		if alarms[i].TS.IsZero() {
			alarms[i].TS = s.now().UTC()
		}
		ids[i] = alarms[i].ID
	}
	s.tower.Push(alarms...)
	return ids
}

// TowerPlaybook resolves the playbook of a tower alarm. Tower severities map
// onto the alert scale and the category comes from the alarm metadata.
func (s *Service) TowerPlaybook(id string) (playbook.Definition, bool) {
	a, ok := s.tower.Get(id)
	if !ok {
		return playbook.Definition{}, false
	}
	return s.playbooks.Match(a.Severity.AlertSeverity(), a.Category()), true
}

// MarkOrigin records the breadcrumb to return to.
func (s *Service) MarkOrigin(o tower.Origin) { s.tower.MarkOrigin(o) }

// Origin returns the last breadcrumb.
func (s *Service) Origin() (tower.Origin, bool) { return s.tower.Origin() }

// History lists the audit trail of one alarm.
func (s *Service) History(ctx context.Context, alarmID string) ([]historian.Entry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, alarmID)
}
