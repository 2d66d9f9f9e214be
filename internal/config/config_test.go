package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreUsable(t *testing.T) {
	fc := Default()
	if fc.Server.Listen == "" || fc.Server.BasePath == "" {
		t.Fatalf("incomplete server defaults: %+v", fc.Server)
	}
	if fc.LabelPrefix != "com.roostd." {
		t.Fatalf("unexpected label prefix %q", fc.LabelPrefix)
	}
	if fc.ReconcileInterval <= 0 || fc.TestWindow <= 0 {
		t.Fatalf("non-positive intervals: %+v", fc)
	}
	if fc.Store.DSN == "" {
		t.Fatalf("missing store DSN default")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	fc, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.LabelPrefix != "com.roostd." {
		t.Fatalf("defaults not applied: %+v", fc)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
agents_dir = "/tmp/agents"
agent_log_dir = "/tmp/agent-logs"
label_prefix = "com.example."
master_config_path = "/tmp/master.json"
reconcile_interval = "10s"
test_window = "3s"

[server]
listen = "127.0.0.1:9090"
base_path = "/api/v1"

[server.tls]
enabled = true
cert_file = "/tmp/cert.pem"
key_file = "/tmp/key.pem"

[store]
dsn = "postgres://roostd:secret@db:5432/roostd"

[[history]]
type = "sqlite"
path = "/tmp/history.db"

[[history]]
type = "clickhouse"
addr = "ch:9000"
database = "fleet"
table = "agent_history"

[log]
level = "debug"
file = "/tmp/roostd.log"
max_size_mb = 25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Server.Listen != "127.0.0.1:9090" || fc.Server.BasePath != "/api/v1" {
		t.Fatalf("server block not applied: %+v", fc.Server)
	}
	if fc.Server.TLS == nil || !fc.Server.TLS.Enabled || fc.Server.TLS.CertFile != "/tmp/cert.pem" {
		t.Fatalf("tls block not applied: %+v", fc.Server.TLS)
	}
	if fc.LabelPrefix != "com.example." {
		t.Fatalf("label prefix not applied: %q", fc.LabelPrefix)
	}
	if fc.ReconcileInterval != 10*time.Second || fc.TestWindow != 3*time.Second {
		t.Fatalf("durations not parsed: %v %v", fc.ReconcileInterval, fc.TestWindow)
	}
	if fc.Store.DSN != "postgres://roostd:secret@db:5432/roostd" {
		t.Fatalf("store DSN not applied: %q", fc.Store.DSN)
	}
	if len(fc.History) != 2 || fc.History[0].Type != "sqlite" || fc.History[1].Addr != "ch:9000" {
		t.Fatalf("history sinks not parsed: %+v", fc.History)
	}
	if fc.Log.Level != "debug" || fc.Log.MaxSizeMB != 25 {
		t.Fatalf("log block not applied: %+v", fc.Log)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
