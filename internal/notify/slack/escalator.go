package slack

import (
	"context"
	"fmt"
	"sync"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/watchtower/internal/playbook"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

// Escalation results passed to OnResult.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// Sender delivers one escalation.
type Sender interface {
	Send(ctx context.Context, a *tower.Alarm, pb *playbook.Definition) error
}

// PlaybookResolver finds the playbook for a tower alarm.
type PlaybookResolver interface {
	TowerPlaybook(id string) (playbook.Definition, bool)
}

// Recorder keeps a trail of sent escalations.
type Recorder interface {
	RecordEscalation(ctx context.Context, a tower.Alarm, note string)
}

// EscalatorOptions configures an Escalator.
type EscalatorOptions struct {
	// MinSeverity is the lowest severity that escalates. Empty means critical.
	MinSeverity tower.Severity
	Playbooks   PlaybookResolver
	Recorder    Recorder
	Logger      log.Logger
	OnResult    func(result string)
}

// Escalator listens to tower events and sends newly arrived alarms at or
// above MinSeverity. Sends run in the background; refreshed alarms are not
// sent again.
type Escalator struct {
	sender Sender
	min    tower.Severity
	pbs    PlaybookResolver
	rec    Recorder
	logger log.Logger
	hook   func(string)

	wg sync.WaitGroup
}

// NewEscalator creates an Escalator around sender.
func NewEscalator(sender Sender, opts EscalatorOptions) *Escalator {
	if opts.MinSeverity == "" {
		opts.MinSeverity = tower.SeverityCritical
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Escalator{
		sender: sender,
		min:    opts.MinSeverity,
		pbs:    opts.Playbooks,
		rec:    opts.Recorder,
		logger: opts.Logger,
		hook:   opts.OnResult,
	}
}

// Listen is a tower.Listener. It never blocks the notifying mutation.
func (e *Escalator) Listen(ev tower.Event) {
	if ev.Kind != tower.EventArrived {
		return
	}
	for i := range ev.Alarms {
		a := ev.Alarms[i]
		if a.Severity.Rank() < e.min.Rank() {
			continue
		}
		e.wg.Add(1)
		go e.escalate(context.Background(), a)
	}
}

// Wait blocks until escalations started so far have finished.
func (e *Escalator) Wait() { e.wg.Wait() }

func (e *Escalator) escalate(ctx context.Context, a tower.Alarm) {
	defer e.wg.Done()

	pb := playbook.Default
	if e.pbs != nil {
		if found, ok := e.pbs.TowerPlaybook(a.ID); ok {
			pb = found
		}
	}

	if err := e.sender.Send(ctx, &a, &pb); err != nil {
		e.logger.Error(ctx, err, "escalation failed",
			"alarm_id", a.ID,
			"severity", string(a.Severity),
		)
		e.result(ResultFailed)
		return
	}

	e.logger.Info(ctx, "alarm escalated",
		"alarm_id", a.ID,
		"playbook", pb.ID,
	)
	if e.rec != nil {
		e.rec.RecordEscalation(ctx, a, fmt.Sprintf("slack: playbook %s", pb.ID))
	}
	e.result(ResultSent)
}

func (e *Escalator) result(r string) {
	if e.hook != nil {
		e.hook(r)
	}
}
