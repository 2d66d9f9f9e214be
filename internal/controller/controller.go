// Package controller implements the verb surface over launch agents:
// create, install, start, stop, restart, test, delete, view, update, export.
// All mutating verbs for one label are serialized through a per-label lock
// so a stop and a start issued in quick succession can never interleave
// against launchd.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roostd/roostd/internal/agent"
	"github.com/roostd/roostd/internal/history"
	"github.com/roostd/roostd/internal/launchd"
	"github.com/roostd/roostd/internal/masterconfig"
	"github.com/roostd/roostd/internal/registry"
)

// Options configures a Controller.
type Options struct {
	// AgentsDir is where compiled plists live (normally
	// ~/Library/LaunchAgents).
	AgentsDir string
	// LogDir, when set, is compiled into plists as the units' stdout/stderr
	// destination.
	LogDir string
	// LabelPrefix namespaces derived labels and status filtering.
	LabelPrefix string
	// TestWindow bounds how long the test verb watches a started unit.
	TestWindow time.Duration
	Logger     *slog.Logger
}

// Controller drives descriptors through launchd.
type Controller struct {
	store  registry.Store
	mgr    launchd.Manager
	mirror *masterconfig.Store
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	sinkMu sync.Mutex
	sinks  []history.Sink
}

func New(store registry.Store, mgr launchd.Manager, mirror *masterconfig.Store, opts Options) *Controller {
	if opts.TestWindow <= 0 {
		opts.TestWindow = 2 * time.Second
	}
	if opts.LabelPrefix == "" {
		opts.LabelPrefix = "com.roostd."
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:  store,
		mgr:    mgr,
		mirror: mirror,
		opts:   opts,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// LabelPrefix returns the namespace this controller manages.
func (c *Controller) LabelPrefix() string { return c.opts.LabelPrefix }

// SetHistorySinks configures external history sinks. Passing none clears
// the list.
func (c *Controller) SetHistorySinks(sinks ...history.Sink) {
	c.sinkMu.Lock()
	c.sinks = append([]history.Sink(nil), sinks...)
	c.sinkMu.Unlock()
}

// lockFor returns the mutex serializing mutating verbs for label.
func (c *Controller) lockFor(label string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[label]
	if !ok {
		l = &sync.Mutex{}
		c.locks[label] = l
	}
	return l
}

// emit records a history event. Sink failures are logged, never propagated:
// history is observability, not part of the verb's contract.
func (c *Controller) emit(ctx context.Context, typ history.EventType, label string, pid, exitStatus int, detail string) {
	c.sinkMu.Lock()
	sinks := append([]history.Sink(nil), c.sinks...)
	c.sinkMu.Unlock()
	if len(sinks) == 0 {
		return
	}
	e := history.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Label:      label,
		PID:        pid,
		ExitStatus: exitStatus,
		OccurredAt: time.Now().UTC(),
		Detail:     detail,
	}
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil {
			c.logger.Warn("history sink send failed", "label", label, "type", typ, "error", err)
		}
	}
}

// mirrorAdd writes through to the master config after an authoritative op
// succeeded. Fire-and-forget per the cache contract.
func (c *Controller) mirrorAdd(d agent.Descriptor) {
	if c.mirror == nil {
		return
	}
	err := c.mirror.AddEntry(masterconfig.Entry{
		Label:     d.Label,
		Kind:      d.Kind,
		Target:    d.Target,
		CreatedAt: d.CreatedAt,
	})
	if err != nil {
		c.logger.Warn("master config add failed", "label", d.Label, "error", err)
	}
}

func (c *Controller) mirrorRemove(label string) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.RemoveEntry(label); err != nil {
		c.logger.Warn("master config remove failed", "label", label, "error", err)
	}
}

// findEntry looks label up in a launchctl listing.
func findEntry(entries []launchd.Entry, label string) (launchd.Entry, bool) {
	for _, e := range entries {
		if e.Label == label {
			return e, true
		}
	}
	return launchd.Entry{}, false
}
