// Package reconciler turns launchd's view of the world into normalized
// status snapshots, and publishes per-label changes to subscribers so the
// HTTP layer can push them instead of forcing clients to poll.
package reconciler

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roostd/roostd/internal/history"
	"github.com/roostd/roostd/internal/launchd"
	"github.com/roostd/roostd/internal/metrics"
	"github.com/roostd/roostd/internal/registry"
)

// Snapshot is the normalized status of one label at a query instant. It is
// ephemeral and never persisted. Loaded=false implies Running=false and a
// nil PID.
type Snapshot struct {
	Label          string `json:"label"`
	Loaded         bool   `json:"loaded"`
	Running        bool   `json:"running"`
	PID            *int   `json:"pid,omitempty"`
	LastExitStatus *int   `json:"last_exit_status,omitempty"`
}

// IsRunning is the derived field the dashboard keys on.
func (s Snapshot) IsRunning() bool { return s.Loaded && s.Running }

// Change is one observed transition, published to subscribers.
type Change struct {
	Label    string   `json:"label"`
	Previous Snapshot `json:"previous"`
	Current  Snapshot `json:"current"`
	// First marks the initial observation of a label, where Previous is
	// zero-valued.
	First bool `json:"first,omitempty"`
}

// Reconciler produces snapshots on demand and, when its loop is running,
// on a fixed cadence.
type Reconciler struct {
	store  registry.Store
	mgr    launchd.Manager
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	loopStop chan struct{}
	last     map[string]Snapshot
	subs     map[int]chan Change
	nextSub  int
	sinks    []history.Sink
}

func New(store registry.Store, mgr launchd.Manager, prefix string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  store,
		mgr:    mgr,
		prefix: prefix,
		logger: logger,
		last:   make(map[string]Snapshot),
		subs:   make(map[int]chan Change),
	}
}

// SetHistorySinks configures sinks that receive crash events observed by
// the loop.
func (r *Reconciler) SetHistorySinks(sinks ...history.Sink) {
	r.mu.Lock()
	r.sinks = append([]history.Sink(nil), sinks...)
	r.mu.Unlock()
}

// SnapshotAll returns a snapshot for every label the registry knows about,
// plus any launchd entry inside this tool's label prefix. A registered
// label absent from launchd's listing yields loaded=false, running=false
// rather than an error. Each label is independently current as of the query
// instant; no cross-label atomicity is promised.
func (r *Reconciler) SnapshotAll(ctx context.Context) ([]Snapshot, error) {
	started := time.Now()
	descriptors, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := r.mgr.List(ctx)
	if err != nil {
		return nil, err
	}

	byLabel := make(map[string]launchd.Entry, len(entries))
	for _, e := range entries {
		byLabel[e.Label] = e
	}

	known := make(map[string]bool, len(descriptors))
	var out []Snapshot
	for _, d := range descriptors {
		known[d.Label] = true
		out = append(out, buildSnapshot(d.Label, byLabel))
	}
	// Out-of-band installs inside our namespace still show up; unrelated
	// system services never do.
	for _, e := range entries {
		if known[e.Label] || !strings.HasPrefix(e.Label, r.prefix) {
			continue
		}
		out = append(out, buildSnapshot(e.Label, byLabel))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })

	metrics.ObserveSnapshotDuration(time.Since(started).Seconds())
	loaded, running := 0, 0
	for _, s := range out {
		if s.Loaded {
			loaded++
		}
		if s.IsRunning() {
			running++
		}
	}
	metrics.SetLoaded(loaded)
	metrics.SetRunning(running)
	return out, nil
}

func buildSnapshot(label string, byLabel map[string]launchd.Entry) Snapshot {
	e, ok := byLabel[label]
	if !ok {
		return Snapshot{Label: label}
	}
	s := Snapshot{Label: label, Loaded: true}
	if e.HasPID {
		s.Running = true
		pid := e.PID
		s.PID = &pid
	}
	st := e.LastExitStatus
	s.LastExitStatus = &st
	return s
}

// Snapshot returns the snapshot for a single label known to the registry.
func (r *Reconciler) Snapshot(ctx context.Context, label string) (Snapshot, error) {
	if _, err := r.store.Get(ctx, label); err != nil {
		return Snapshot{}, err
	}
	entries, err := r.mgr.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	byLabel := make(map[string]launchd.Entry, len(entries))
	for _, e := range entries {
		byLabel[e.Label] = e
	}
	return buildSnapshot(label, byLabel), nil
}

// Subscribe registers a change listener. The returned cancel func must be
// called to release it. Slow subscribers lose changes rather than blocking
// the loop; snapshots are idempotent descriptions of current truth, so a
// dropped diff is corrected by the next one.
func (r *Reconciler) Subscribe() (<-chan Change, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan Change, 64)
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

// ReconcileOnce performs one poll tick: snapshot, diff against the previous
// tick, publish changes, and record crash evidence.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	snaps, err := r.SnapshotAll(ctx)
	if err != nil {
		// A failed tick degrades to stale data; the next tick retries.
		r.logger.Warn("reconcile tick failed", "error", err)
		return
	}

	r.mu.Lock()
	prev := r.last
	next := make(map[string]Snapshot, len(snaps))
	var changes []Change
	for _, s := range snaps {
		next[s.Label] = s
		p, seen := prev[s.Label]
		if !seen {
			changes = append(changes, Change{Label: s.Label, Current: s, First: true})
			continue
		}
		if !snapshotEqual(p, s) {
			changes = append(changes, Change{Label: s.Label, Previous: p, Current: s})
		}
	}
	for label, p := range prev {
		if _, still := next[label]; !still {
			changes = append(changes, Change{Label: label, Previous: p, Current: Snapshot{Label: label}})
		}
	}
	r.last = next
	subs := make([]chan Change, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	sinks := append([]history.Sink(nil), r.sinks...)
	r.mu.Unlock()

	for _, ch := range changes {
		for _, sub := range subs {
			select {
			case sub <- ch:
			default:
			}
		}
		if ch.Previous.IsRunning() && !ch.Current.IsRunning() {
			exit := 0
			if ch.Current.LastExitStatus != nil {
				exit = *ch.Current.LastExitStatus
			}
			if exit != 0 {
				metrics.IncCrash(ch.Label)
				r.recordCrash(ctx, sinks, ch.Label, exit)
			}
		}
	}
}

func (r *Reconciler) recordCrash(ctx context.Context, sinks []history.Sink, label string, exit int) {
	e := history.Event{
		ID:         uuid.NewString(),
		Type:       history.EventCrashed,
		Label:      label,
		ExitStatus: exit,
		OccurredAt: time.Now().UTC(),
	}
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil {
			r.logger.Warn("history sink send failed", "label", label, "error", err)
		}
	}
}

func snapshotEqual(a, b Snapshot) bool {
	if a.Label != b.Label || a.Loaded != b.Loaded || a.Running != b.Running {
		return false
	}
	if (a.PID == nil) != (b.PID == nil) || (a.PID != nil && *a.PID != *b.PID) {
		return false
	}
	if (a.LastExitStatus == nil) != (b.LastExitStatus == nil) {
		return false
	}
	return a.LastExitStatus == nil || *a.LastExitStatus == *b.LastExitStatus
}

// StartLoop begins the background poll at interval. Calling it while a loop
// is already running is a no-op.
func (r *Reconciler) StartLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r.mu.Lock()
	if r.loopStop != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.loopStop = stop
	r.mu.Unlock()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				r.ReconcileOnce(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// StopLoop stops the background poll if running.
func (r *Reconciler) StopLoop() {
	r.mu.Lock()
	ch := r.loopStop
	r.loopStop = nil
	r.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}
