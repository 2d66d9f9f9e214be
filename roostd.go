package roostd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roostd/roostd/internal/agent"
	"github.com/roostd/roostd/internal/config"
	"github.com/roostd/roostd/internal/controller"
	"github.com/roostd/roostd/internal/history"
	"github.com/roostd/roostd/internal/launchd"
	"github.com/roostd/roostd/internal/masterconfig"
	"github.com/roostd/roostd/internal/metrics"
	"github.com/roostd/roostd/internal/reconciler"
	rfactory "github.com/roostd/roostd/internal/registry/factory"
	"github.com/roostd/roostd/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Descriptor = agent.Descriptor

type RunPolicy = agent.RunPolicy

type Kind = agent.Kind

const (
	KindDesktop = agent.KindDesktop
	KindWeb     = agent.KindWeb
)

type CreateRequest = controller.CreateRequest

type TestResult = controller.TestResult

type Snapshot = reconciler.Snapshot

type HistorySink = history.Sink

type HistoryEvent = history.Event

// Manager is a thin facade over the internal controller and reconciler.
// It provides a stable public API for embedding.
type Manager struct {
	ctrl *controller.Controller
	rec  *reconciler.Reconciler
}

// ManagerOptions configures an embedded Manager.
type ManagerOptions struct {
	// AgentsDir is where compiled plists are written, normally
	// ~/Library/LaunchAgents.
	AgentsDir string
	// LogDir receives agents' stdout/stderr files.
	LogDir string
	// LabelPrefix namespaces derived labels; defaults to "com.roostd.".
	LabelPrefix string
	// DSN selects the registry backend, a sqlite path or postgres:// URL.
	DSN    string
	Logger *slog.Logger
}

// NewManager opens the registry and assembles controller and reconciler.
func NewManager(ctx context.Context, opts ManagerOptions) (*Manager, error) {
	store, err := rfactory.NewFromDSN(opts.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	mgr := launchd.NewExecManager()
	ctrl := controller.New(store, mgr, nil, controller.Options{
		AgentsDir:   opts.AgentsDir,
		LogDir:      opts.LogDir,
		LabelPrefix: opts.LabelPrefix,
		Logger:      opts.Logger,
	})
	rec := reconciler.New(store, mgr, ctrl.LabelPrefix(), opts.Logger)
	return &Manager{ctrl: ctrl, rec: rec}, nil
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (Descriptor, error) {
	return m.ctrl.Create(ctx, req)
}

func (m *Manager) Install(ctx context.Context, req CreateRequest) (Descriptor, error) {
	return m.ctrl.Install(ctx, req)
}

func (m *Manager) Start(ctx context.Context, label string) error { return m.ctrl.Start(ctx, label) }
func (m *Manager) Stop(ctx context.Context, label string) error  { return m.ctrl.Stop(ctx, label) }
func (m *Manager) Restart(ctx context.Context, label string) error {
	return m.ctrl.Restart(ctx, label)
}
func (m *Manager) Delete(ctx context.Context, label string) error { return m.ctrl.Delete(ctx, label) }

func (m *Manager) Test(ctx context.Context, label string) (TestResult, error) {
	return m.ctrl.Test(ctx, label)
}

func (m *Manager) List(ctx context.Context) ([]Descriptor, error) { return m.ctrl.List(ctx) }

func (m *Manager) Status(ctx context.Context) ([]Snapshot, error) {
	return m.rec.SnapshotAll(ctx)
}

// SetHistorySinks wires lifecycle events to external sinks.
func (m *Manager) SetHistorySinks(sinks ...HistorySink) {
	m.ctrl.SetHistorySinks(sinks...)
	m.rec.SetHistorySinks(sinks...)
}

// Config facade

type Config = config.FileConfig

func LoadConfig(path string) (Config, error) { return config.Load(path) }

func DefaultConfig() Config { return config.Default() }

// NewHTTPHandler builds the REST handler for embedding in an existing
// server.
func NewHTTPHandler(m *Manager, mirror *masterconfig.Store, basePath string, logger *slog.Logger) http.Handler {
	return server.NewRouter(m.ctrl, m.rec, mirror, basePath, logger).Handler()
}

// RegisterMetricsDefault registers roostd metrics on the default
// prometheus registry.
func RegisterMetricsDefault() error {
	return metrics.Register(prometheus.DefaultRegisterer)
}
