package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roostd/roostd/internal/agent"
	"github.com/roostd/roostd/internal/history"
	"github.com/roostd/roostd/internal/metrics"
)

// CreateRequest carries the inputs of create/create-web/install.
type CreateRequest struct {
	Label     string          `json:"label"`
	Kind      agent.Kind      `json:"kind"`
	Target    string          `json:"target"`
	Browser   string          `json:"browser,omitempty"`
	RunPolicy agent.RunPolicy `json:"run_policy"`
}

// TestResult reports what the bounded trial start observed. The unit is
// left in whatever state the start produced.
type TestResult struct {
	Label          string        `json:"label"`
	ReachedRunning bool          `json:"reached_running"`
	PID            int           `json:"pid,omitempty"`
	Crashed        bool          `json:"crashed"`
	LastExitStatus int           `json:"last_exit_status"`
	Window         time.Duration `json:"window"`
}

// ExportResult is a downloadable rendering of the descriptor file.
type ExportResult struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Create compiles a descriptor and persists it without registering it with
// launchd, so operators can inspect before activating.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (agent.Descriptor, error) {
	d, err := c.create(ctx, req)
	metrics.IncOperation("create", result(err))
	return d, err
}

func (c *Controller) create(ctx context.Context, req CreateRequest) (agent.Descriptor, error) {
	if req.Kind == "" {
		req.Kind = agent.KindDesktop
	}
	if err := agent.ValidateTarget(req.Kind, req.Target); err != nil {
		return agent.Descriptor{}, err
	}
	label := req.Label
	if label == "" {
		derived, err := agent.DeriveLabel(c.opts.LabelPrefix, req.Kind, req.Target)
		if err != nil {
			return agent.Descriptor{}, err
		}
		label = derived
	}
	if !agent.IsSafeLabel(label) {
		return agent.Descriptor{}, &agent.ValidationError{Field: "label", Reason: "allowed [A-Za-z0-9._-], no '..' or path separators"}
	}

	lock := c.lockFor(label)
	lock.Lock()
	defer lock.Unlock()

	d := agent.Descriptor{
		Label:          label,
		Kind:           req.Kind,
		Target:         req.Target,
		Browser:        req.Browser,
		RunPolicy:      req.RunPolicy,
		DescriptorPath: agent.PlistPath(c.opts.AgentsDir, label),
		CreatedAt:      time.Now().UTC(),
	}
	content, err := d.CompilePlist(c.opts.LogDir)
	if err != nil {
		return agent.Descriptor{}, err
	}
	// Registry insert first: it is the uniqueness gate. Derived-label
	// collisions are rejected the same as requested ones.
	if err := c.store.Create(ctx, d); err != nil {
		return agent.Descriptor{}, err
	}
	if err := agent.WriteFileAtomic(d.DescriptorPath, content); err != nil {
		_ = c.store.Delete(ctx, label)
		return agent.Descriptor{}, fmt.Errorf("write descriptor: %w", err)
	}
	c.mirrorAdd(d)
	c.emit(ctx, history.EventCreated, label, 0, 0, string(d.Kind))
	return d, nil
}

// Install registers the descriptor with launchd, compiling it first if it
// does not exist yet (compile-if-absent + register).
func (c *Controller) Install(ctx context.Context, req CreateRequest) (agent.Descriptor, error) {
	d, err := c.install(ctx, req)
	metrics.IncOperation("install", result(err))
	return d, err
}

func (c *Controller) install(ctx context.Context, req CreateRequest) (agent.Descriptor, error) {
	label := req.Label
	var d agent.Descriptor
	var err error
	if label != "" {
		d, err = c.store.Get(ctx, label)
	} else {
		err = agent.ErrNotFound
	}
	if errors.Is(err, agent.ErrNotFound) && req.Target != "" {
		d, err = c.create(ctx, req)
	}
	if err != nil {
		return agent.Descriptor{}, err
	}

	lock := c.lockFor(d.Label)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a delete may have run since the lookup.
	d, err = c.store.Get(ctx, d.Label)
	if err != nil {
		return agent.Descriptor{}, err
	}
	// Recompile when the plist was removed out-of-band; the registry row
	// stays authoritative.
	if _, statErr := os.Stat(d.DescriptorPath); statErr != nil {
		content, cerr := d.CompilePlist(c.opts.LogDir)
		if cerr != nil {
			return agent.Descriptor{}, cerr
		}
		if werr := agent.WriteFileAtomic(d.DescriptorPath, content); werr != nil {
			return agent.Descriptor{}, fmt.Errorf("write descriptor: %w", werr)
		}
	}

	if err := c.mgr.Load(ctx, d.DescriptorPath); err != nil {
		return agent.Descriptor{}, err
	}
	if err := c.store.SetInstalled(ctx, d.Label, true); err != nil {
		c.logger.Warn("mark installed failed", "label", d.Label, "error", err)
	}
	d.Installed = true
	c.mirrorAdd(d)
	c.emit(ctx, history.EventInstalled, d.Label, 0, 0, "")
	return d, nil
}

// Start kicks off an installed agent.
func (c *Controller) Start(ctx context.Context, label string) error {
	err := c.start(ctx, label)
	metrics.IncOperation("start", result(err))
	return err
}

func (c *Controller) start(ctx context.Context, label string) error {
	lock := c.lockFor(label)
	lock.Lock()
	defer lock.Unlock()
	d, err := c.store.Get(ctx, label)
	if err != nil {
		return err
	}
	if err := c.mgr.Start(ctx, d.Label); err != nil {
		return err
	}
	c.emit(ctx, history.EventStarted, label, 0, 0, "")
	return nil
}

// Stop terminates the agent's process. Stopping an already-stopped agent is
// a successful no-op.
func (c *Controller) Stop(ctx context.Context, label string) error {
	err := c.stop(ctx, label)
	metrics.IncOperation("stop", result(err))
	return err
}

func (c *Controller) stop(ctx context.Context, label string) error {
	lock := c.lockFor(label)
	lock.Lock()
	defer lock.Unlock()
	if _, err := c.store.Get(ctx, label); err != nil {
		return err
	}
	return c.stopLocked(ctx, label)
}

func (c *Controller) stopLocked(ctx context.Context, label string) error {
	entries, err := c.mgr.List(ctx)
	if err != nil {
		return err
	}
	e, ok := findEntry(entries, label)
	if !ok || !e.HasPID {
		return nil // already stopped
	}
	if err := c.mgr.Stop(ctx, label); err != nil {
		return err
	}
	c.emit(ctx, history.EventStopped, label, e.PID, 0, "")
	return nil
}

// Restart is stop-then-start. A stop failure against an already-dead
// process is not fatal; the start still proceeds.
func (c *Controller) Restart(ctx context.Context, label string) error {
	err := c.restart(ctx, label)
	metrics.IncOperation("restart", result(err))
	return err
}

func (c *Controller) restart(ctx context.Context, label string) error {
	lock := c.lockFor(label)
	lock.Lock()
	defer lock.Unlock()
	d, err := c.store.Get(ctx, label)
	if err != nil {
		return err
	}
	if err := c.stopLocked(ctx, label); err != nil {
		c.logger.Warn("restart: stop failed, proceeding to start", "label", label, "error", err)
	}
	if err := c.mgr.Start(ctx, d.Label); err != nil {
		return err
	}
	c.emit(ctx, history.EventStarted, label, 0, 0, "restart")
	return nil
}

// Delete unloads and removes the agent. Best-effort cleanup: an unload
// failure on an already-gone unit does not block removal, and deleting an
// already-deleted label succeeds.
func (c *Controller) Delete(ctx context.Context, label string) error {
	err := c.delete(ctx, label)
	metrics.IncOperation("delete", result(err))
	return err
}

func (c *Controller) delete(ctx context.Context, label string) error {
	lock := c.lockFor(label)
	lock.Lock()
	defer lock.Unlock()

	d, err := c.store.Get(ctx, label)
	if errors.Is(err, agent.ErrNotFound) {
		return nil // idempotent
	}
	if err != nil {
		return err
	}
	if unloadErr := c.mgr.Unload(ctx, d.DescriptorPath); unloadErr != nil {
		c.logger.Warn("unload failed during delete, continuing", "label", label, "error", unloadErr)
	}
	if rmErr := os.Remove(d.DescriptorPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("remove descriptor: %w", rmErr)
	}
	if err := c.store.Delete(ctx, label); err != nil {
		return err
	}
	c.mirrorRemove(label)
	c.emit(ctx, history.EventDeleted, label, 0, 0, "")
	return nil
}

// Test starts the agent and watches it for the configured window, reporting
// whether it reached running and any immediate-crash evidence. It does not
// stop the unit afterwards.
func (c *Controller) Test(ctx context.Context, label string) (TestResult, error) {
	res, err := c.test(ctx, label)
	metrics.IncOperation("test", result(err))
	return res, err
}

func (c *Controller) test(ctx context.Context, label string) (TestResult, error) {
	lock := c.lockFor(label)
	lock.Lock()
	defer lock.Unlock()

	d, err := c.store.Get(ctx, label)
	if err != nil {
		return TestResult{}, err
	}

	res := TestResult{Label: label, Window: c.opts.TestWindow}
	// A non-zero exit status left over from an earlier run is not evidence
	// about this start; only a changed status counts.
	staleExit := 0
	if entries, lerr := c.mgr.List(ctx); lerr == nil {
		if e, ok := findEntry(entries, label); ok {
			staleExit = e.LastExitStatus
		}
	}
	if err := c.mgr.Start(ctx, d.Label); err != nil {
		return res, err
	}
	deadline := time.Now().Add(c.opts.TestWindow)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		entries, err := c.mgr.List(ctx)
		if err == nil {
			if e, ok := findEntry(entries, label); ok {
				if e.HasPID {
					res.ReachedRunning = true
					res.PID = e.PID
				} else if res.ReachedRunning {
					// was up, now gone inside the window
					res.Crashed = true
					res.LastExitStatus = e.LastExitStatus
					return res, nil
				} else if e.LastExitStatus != 0 && e.LastExitStatus != staleExit {
					res.Crashed = true
					res.LastExitStatus = e.LastExitStatus
					return res, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-tick.C:
		}
	}
}

// View returns the raw descriptor text.
func (c *Controller) View(ctx context.Context, label string) (string, error) {
	d, err := c.store.Get(ctx, label)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(d.DescriptorPath)
	if err != nil {
		return "", fmt.Errorf("read descriptor: %w", err)
	}
	return string(b), nil
}

// Update replaces the descriptor file with content, validating it parses as
// a launchd plist for this label before any byte touches disk.
func (c *Controller) Update(ctx context.Context, label string, content []byte) error {
	err := c.update(ctx, label, content)
	metrics.IncOperation("update", result(err))
	return err
}

func (c *Controller) update(ctx context.Context, label string, content []byte) error {
	if err := agent.ValidatePlist(content, label); err != nil {
		return err
	}
	// Existence is checked under the label lock so a concurrent delete
	// cannot win in between and leave the write re-creating an orphan.
	lock := c.lockFor(label)
	lock.Lock()
	defer lock.Unlock()
	d, err := c.store.Get(ctx, label)
	if err != nil {
		return err
	}
	return agent.WriteFileAtomic(d.DescriptorPath, content)
}

// Export returns the descriptor as a named download.
func (c *Controller) Export(ctx context.Context, label string) (ExportResult, error) {
	content, err := c.View(ctx, label)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Filename: label + ".plist", Content: content}, nil
}

// List enumerates all registered descriptors.
func (c *Controller) List(ctx context.Context) ([]agent.Descriptor, error) {
	return c.store.List(ctx)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
