package dashboard

import (
	"context"

	"github.com/linnemanlabs/watchtower/internal/historian"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

// AckResult reports the local outcome of Acknowledge.
type AckResult struct {
	// Acknowledged lists the tower alarms that changed state.
	Acknowledged []string      `json:"acknowledged"`
	Summary      tower.Summary `json:"summary"`
}

// Acknowledge marks ids acknowledged in the tower and returns once the local
// change is visible. Remote acknowledgment and the historian entry run in the
// background for every alarm this call changed and for ids the tower does not
// hold, so alert ids unknown to the tower are still synced. Their failures are
// logged and counted; the local change is never undone.
func (s *Service) Acknowledge(ctx context.Context, ids ...string) AckResult {
	ids = uniq(ids)
	var unknown []string
	for _, id := range ids {
		if _, known := s.tower.Get(id); !known {
			unknown = append(unknown, id)
		}
	}

	changed := s.tower.Acknowledge(ids...)
	res := AckResult{
		Acknowledged: make([]string, 0, len(changed)),
		Summary:      s.tower.Summary(),
	}
	targets := make([]tower.Alarm, 0, len(changed)+len(unknown))
	seen := make(map[string]struct{}, len(changed))
	for _, a := range changed {
		res.Acknowledged = append(res.Acknowledged, a.ID)
		targets = append(targets, a)
		seen[a.ID] = struct{}{}
	}
	for _, id := range unknown {
		if _, ok := seen[id]; ok {
			continue
		}
		targets = append(targets, tower.Alarm{ID: id})
	}
	if s.hooks.OnAcknowledge != nil {
		s.hooks.OnAcknowledge(len(changed))
	}

	if len(targets) > 0 {
		s.pending.Add(1)
		go s.syncAcknowledged(context.WithoutCancel(ctx), targets)
	}
	return res
}

// RecordEscalation writes a best-effort historian entry for an escalated alarm.
func (s *Service) RecordEscalation(ctx context.Context, a tower.Alarm, note string) {
	e := historian.NewEntry(a.ID, historian.ActionEscalate, s.now())
	e.Scope = a.Scope
	e.Note = note
	s.record(ctx, e)
}

// Wait blocks until background side effects started so far have finished.
func (s *Service) Wait() { s.pending.Wait() }

func (s *Service) syncAcknowledged(ctx context.Context, alarms []tower.Alarm) {
	defer s.pending.Done()

	for _, a := range alarms {
		if s.remote != nil {
			if err := s.remote.AcknowledgeAlert(ctx, a.ID); err != nil {
				s.sideEffectFailed(ctx, err, CollaboratorFeed, a.ID)
			}
		}
		e := historian.NewEntry(a.ID, historian.ActionAcknowledge, s.now())
		e.Scope = a.Scope
		s.record(ctx, e)
	}
}

func (s *Service) record(ctx context.Context, e *historian.Entry) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, e); err != nil {
		s.sideEffectFailed(ctx, err, CollaboratorHistorian, e.AlarmID)
	}
}

func (s *Service) sideEffectFailed(ctx context.Context, err error, collaborator, alarmID string) {
	s.logger.Error(ctx, err, "best-effort side effect failed",
		"collaborator", collaborator,
		"alarm_id", alarmID,
	)
	if s.hooks.OnSideEffectFailure != nil {
		s.hooks.OnSideEffectFailure(collaborator)
	}
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
