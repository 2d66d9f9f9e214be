// Package launchd wraps the macOS service manager CLI. All state mutation
// and observation goes through the Manager interface so the rest of the
// system can be exercised against a fake in tests.
package launchd

import (
	"context"
	"os/exec"
	"strings"

	"github.com/roostd/roostd/internal/agent"
)

// Entry is one row from the service manager's listing. PID carries a value
// only while the unit has a live process.
type Entry struct {
	Label          string
	PID            int
	HasPID         bool
	LastExitStatus int
}

// Manager is the verb surface against launchd.
type Manager interface {
	// Load registers a plist with the service manager.
	Load(ctx context.Context, plistPath string) error
	// Unload removes a registration. Callers treat failures on an already
	// unloaded unit as non-fatal.
	Unload(ctx context.Context, plistPath string) error
	// Start kicks off the unit identified by label.
	Start(ctx context.Context, label string) error
	// Stop terminates the unit's process; launchd keeps the registration.
	Stop(ctx context.Context, label string) error
	// List returns every entry visible in this user's launchd domain.
	List(ctx context.Context) ([]Entry, error)
}

// ExecManager shells out to launchctl, the only supported interface to
// launchd for per-user Launch Agents.
type ExecManager struct {
	// Path of the launchctl binary; defaults to PATH lookup.
	Bin string
}

func NewExecManager() *ExecManager { return &ExecManager{Bin: "launchctl"} }

func (m *ExecManager) run(ctx context.Context, args ...string) (string, error) {
	bin := m.Bin
	if bin == "" {
		bin = "launchctl"
	}
	// #nosec G204 -- args are validated labels and controlled plist paths
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &agent.OSError{Op: args[0], Output: strings.TrimSpace(string(out)), Err: err}
	}
	return string(out), nil
}

func (m *ExecManager) Load(ctx context.Context, plistPath string) error {
	_, err := m.run(ctx, "load", "-w", plistPath)
	return err
}

func (m *ExecManager) Unload(ctx context.Context, plistPath string) error {
	_, err := m.run(ctx, "unload", plistPath)
	return err
}

func (m *ExecManager) Start(ctx context.Context, label string) error {
	_, err := m.run(ctx, "start", label)
	return err
}

func (m *ExecManager) Stop(ctx context.Context, label string) error {
	_, err := m.run(ctx, "stop", label)
	return err
}

func (m *ExecManager) List(ctx context.Context) ([]Entry, error) {
	out, err := m.run(ctx, "list")
	if err != nil {
		return nil, err
	}
	return ParseList(out), nil
}
