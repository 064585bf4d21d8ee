// Package poller keeps the alert snapshot of the watched scope fresh.
//
// One loop runs per scope selection. Polls inside a loop are sequential, so two
// fetches for the same scope never overlap. Changing the scope cancels the
// running loop and starts a new one with a fresh interval. Every loop carries a
// generation number and a response whose generation is no longer current is
// discarded without touching the snapshot.
package poller

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/watchtower/internal/alert"
	"github.com/linnemanlabs/watchtower/internal/scope"
)

// DefaultInterval is the polling cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Poll outcomes reported to Hooks.OnPoll.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeStale = "stale"
)

// Fetcher is the alert backend.
type Fetcher interface {
	FetchAlerts(ctx context.Context, projectID string) ([]alert.Alert, error)
	FetchHierarchy(ctx context.Context) (scope.Hierarchy, error)
}

// Snapshot is the last known state of the watched scope. Alerts are the raw
// project-level alerts; scope filtering happens downstream.
type Snapshot struct {
	Selection    scope.Selection `json:"selection"`
	Alerts       []alert.Alert   `json:"-"`
	Hierarchy    scope.Hierarchy `json:"-"`
	FetchedAt    time.Time       `json:"fetchedAt,omitzero"`
	Err          string          `json:"error,omitempty"`
	HierarchyErr string          `json:"hierarchyError,omitempty"`
	Refreshing   bool            `json:"refreshing"`
	Loaded       bool            `json:"loaded"`
}

// Hooks receives poll telemetry. Nil fields are skipped.
type Hooks struct {
	OnPoll func(outcome string, dur time.Duration)
	// OnScopeChange fires when the selection changes, including hierarchy clamps.
	OnScopeChange func(from, to scope.Selection)
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Logger   log.Logger
	Hooks    Hooks
}

// Poller owns the polling loop for one view.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	logger   log.Logger
	hooks    Hooks

	mu         sync.Mutex
	snap       Snapshot
	hierLoaded bool
	gen        uint64
	parent     context.Context
	cancel     context.CancelFunc
	running    bool
	wg         sync.WaitGroup
}

// New returns a stopped poller.
func New(f Fetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Poller{
		fetcher:  f,
		interval: opts.Interval,
		logger:   opts.Logger,
		hooks:    opts.Hooks,
	}
}

// Start fetches the hierarchy once, clamps sel against it and starts polling.
// A hierarchy failure is recorded in the snapshot and does not prevent polling.
// The loop stops when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context, sel scope.Selection) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("poller already started")
	}
	p.running = true
	p.parent = ctx
	p.snap.Selection = sel
	p.mu.Unlock()

	_ = p.RefreshHierarchy(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && p.cancel == nil {
		p.startLoopLocked()
	}
	return nil
}

// Stop cancels the running loop and waits for it to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.running = false
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.snap.Refreshing = false
	p.mu.Unlock()
	p.wg.Wait()
}

// SetScope switches the watched selection. Selecting the current selection
// again is a no-op; anything else restarts the interval.
func (p *Poller) SetScope(sel scope.Selection) {
	p.mu.Lock()
	from := p.snap.Selection
	changed := from != sel
	if changed {
		p.applyLocked(sel)
	}
	p.mu.Unlock()

	if changed && p.hooks.OnScopeChange != nil {
		p.hooks.OnScopeChange(from, sel)
	}
}

// RefreshHierarchy refetches the hierarchy. When it changed, the current
// selection is clamped against the new tree once.
func (p *Poller) RefreshHierarchy(ctx context.Context) error {
	h, err := p.fetcher.FetchHierarchy(ctx)

	p.mu.Lock()
	if err != nil {
		p.snap.HierarchyErr = err.Error()
		p.mu.Unlock()
		p.logger.Warn(ctx, "hierarchy fetch failed", "err", err)
		return err
	}

	changed := !p.hierLoaded || !reflect.DeepEqual(h, p.snap.Hierarchy)
	p.snap.Hierarchy = h
	p.snap.HierarchyErr = ""
	p.hierLoaded = true

	from := p.snap.Selection
	to := from
	if changed {
		to = scope.Clamp(from, h)
		if to != from {
			p.applyLocked(to)
		}
	}
	p.mu.Unlock()

	if to != from {
		p.logger.Info(ctx, "scope clamped to hierarchy",
			"from", from,
			"to", to,
		)
		if p.hooks.OnScopeChange != nil {
			p.hooks.OnScopeChange(from, to)
		}
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snap
	s.Alerts = append([]alert.Alert(nil), p.snap.Alerts...)
	return s
}

// applyLocked switches the selection. Alerts of a different project are
// dropped because they cannot belong to the new scope.
func (p *Poller) applyLocked(sel scope.Selection) {
	if sel.ProjectID != p.snap.Selection.ProjectID {
		p.snap.Alerts = nil
		p.snap.Loaded = false
		p.snap.FetchedAt = time.Time{}
		p.snap.Err = ""
	}
	p.snap.Selection = sel
	if p.running {
		p.startLoopLocked()
	}
}

func (p *Poller) startLoopLocked() {
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	p.wg.Add(1)
	go p.loop(ctx, p.gen, p.snap.Selection)
}

func (p *Poller) loop(ctx context.Context, gen uint64, sel scope.Selection) {
	defer p.wg.Done()

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		p.poll(ctx, gen, sel)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, gen uint64, sel scope.Selection) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.snap.Refreshing = true
	p.mu.Unlock()

	start := time.Now()
	alerts, err := p.fetcher.FetchAlerts(ctx, sel.ProjectID)
	dur := time.Since(start)

	p.mu.Lock()
	outcome := OutcomeOK
	switch {
	case gen != p.gen || ctx.Err() != nil:
		outcome = OutcomeStale
	case err != nil:
		outcome = OutcomeError
		p.snap.Err = err.Error()
		p.snap.Refreshing = false
	default:
		p.snap.Alerts = alerts
		p.snap.FetchedAt = time.Now()
		p.snap.Err = ""
		p.snap.Loaded = true
		p.snap.Refreshing = false
	}
	p.mu.Unlock()

	if outcome == OutcomeError {
		p.logger.Warn(ctx, "alert fetch failed",
			"project", sel.ProjectID,
			"err", err,
		)
	}
	if p.hooks.OnPoll != nil {
		p.hooks.OnPoll(outcome, dur)
	}
}
