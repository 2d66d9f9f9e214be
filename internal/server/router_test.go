package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/roostd/roostd/internal/controller"
	"github.com/roostd/roostd/internal/launchd"
	"github.com/roostd/roostd/internal/masterconfig"
	"github.com/roostd/roostd/internal/reconciler"
	"github.com/roostd/roostd/internal/registry/sqlite"
)

// fakeManager simulates launchd behind the full HTTP stack.
type fakeManager struct {
	mu      sync.Mutex
	entries map[string]launchd.Entry
	nextPID int
}

func newFakeManager() *fakeManager {
	return &fakeManager{entries: make(map[string]launchd.Entry), nextPID: 100}
}

func labelFromPath(p string) string {
	base := filepath.Base(p)
	return base[:len(base)-len(".plist")]
}

func (m *fakeManager) Load(_ context.Context, plistPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	label := labelFromPath(plistPath)
	if _, ok := m.entries[label]; !ok {
		m.entries[label] = launchd.Entry{Label: label}
	}
	return nil
}

func (m *fakeManager) Unload(_ context.Context, plistPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, labelFromPath(plistPath))
	return nil
}

func (m *fakeManager) Start(_ context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[label]
	e.Label = label
	m.nextPID++
	e.HasPID = true
	e.PID = m.nextPID
	m.entries[label] = e
	return nil
}

func (m *fakeManager) Stop(_ context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[label]
	e.HasPID = false
	e.PID = 0
	m.entries[label] = e
	return nil
}

func (m *fakeManager) List(_ context.Context) ([]launchd.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]launchd.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

type testServer struct {
	handler http.Handler
	target  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	target := filepath.Join(dir, "Kiosk.app")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("mk target: %v", err)
	}

	store, err := sqlite.New(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	mgr := newFakeManager()
	mirror := masterconfig.New(filepath.Join(dir, "master.json"))
	ctrl := controller.New(store, mgr, mirror, controller.Options{
		AgentsDir: filepath.Join(dir, "LaunchAgents"),
	})
	rec := reconciler.New(store, mgr, ctrl.LabelPrefix(), nil)
	router := NewRouter(ctrl, rec, mirror, "/api", nil)
	return &testServer{handler: router.Handler(), target: target}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response (%d): %v\n%s", w.Code, err, w.Body.String())
	}
	return w.Code, resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", w.Code)
	}
}

func TestCreateAndList(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.do(t, "POST", "/api/launch-agents/create", map[string]any{"target": ts.target})
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("create failed: %d %s", code, resp.Message)
	}
	var created struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if created.Label != "com.roostd.kiosk" {
		t.Fatalf("unexpected label %q", created.Label)
	}

	code, resp = ts.do(t, "GET", "/api/launch-agents/list", nil)
	if code != http.StatusOK {
		t.Fatalf("list returned %d", code)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(list))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	// validation -> 400
	code, resp := ts.do(t, "POST", "/api/launch-agents/create", map[string]any{"target": "relative/path"})
	if code != http.StatusBadRequest || resp.Code != "validation" {
		t.Fatalf("expected 400 validation, got %d %q", code, resp.Code)
	}

	// not_found -> 404
	code, resp = ts.do(t, "POST", "/api/launch-agents/start", map[string]any{"label": "com.roostd.ghost"})
	if code != http.StatusNotFound || resp.Code != "not_found" {
		t.Fatalf("expected 404 not_found, got %d %q", code, resp.Code)
	}

	// conflict -> 409
	if code, _ := ts.do(t, "POST", "/api/launch-agents/create", map[string]any{"target": ts.target}); code != http.StatusOK {
		t.Fatalf("seed create failed: %d", code)
	}
	code, resp = ts.do(t, "POST", "/api/launch-agents/create", map[string]any{"target": ts.target})
	if code != http.StatusConflict || resp.Code != "conflict" {
		t.Fatalf("expected 409 conflict, got %d %q", code, resp.Code)
	}

	// unsafe label -> 400 before any controller work
	code, resp = ts.do(t, "POST", "/api/launch-agents/stop", map[string]any{"label": "../etc/passwd"})
	if code != http.StatusBadRequest || resp.Code != "validation" {
		t.Fatalf("expected 400 validation, got %d %q", code, resp.Code)
	}
}

func TestDeleteIdempotentOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	code, resp := ts.do(t, "POST", "/api/launch-agents/delete", map[string]any{"label": "com.roostd.never-existed"})
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("delete of unknown label must succeed: %d %s", code, resp.Message)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, "POST", "/api/launch-agents/install", map[string]any{"target": ts.target})
	if code != http.StatusOK {
		t.Fatalf("install returned %d", code)
	}
	label := "com.roostd.kiosk"

	code, _ = ts.do(t, "POST", "/api/launch-agents/start", map[string]any{"label": label})
	if code != http.StatusOK {
		t.Fatalf("start returned %d", code)
	}

	code, resp := ts.do(t, "GET", "/api/launch-agents/status", nil)
	if code != http.StatusOK {
		t.Fatalf("status returned %d", code)
	}
	var snaps []struct {
		Label   string `json:"label"`
		Loaded  bool   `json:"loaded"`
		Running bool   `json:"running"`
		PID     *int   `json:"pid"`
	}
	if err := json.Unmarshal(resp.Data, &snaps); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(snaps) != 1 || !snaps[0].Running || snaps[0].PID == nil {
		t.Fatalf("unexpected status %+v", snaps)
	}

	code, _ = ts.do(t, "POST", "/api/launch-agents/stop", map[string]any{"label": label})
	if code != http.StatusOK {
		t.Fatalf("stop returned %d", code)
	}
	code, _ = ts.do(t, "POST", "/api/launch-agents/delete", map[string]any{"label": label})
	if code != http.StatusOK {
		t.Fatalf("delete returned %d", code)
	}
}

func TestViewUpdateOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, "POST", "/api/launch-agents/create", map[string]any{"target": ts.target})
	if code != http.StatusOK {
		t.Fatalf("create returned %d", code)
	}
	label := "com.roostd.kiosk"

	code, resp := ts.do(t, "POST", "/api/launch-agents/view", map[string]any{"label": label})
	if code != http.StatusOK {
		t.Fatalf("view returned %d", code)
	}
	var viewed struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(resp.Data, &viewed); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if viewed.Content == "" {
		t.Fatalf("empty plist content")
	}

	// Round-trip the same content through update.
	code, _ = ts.do(t, "POST", "/api/launch-agents/update", map[string]any{"label": label, "content": viewed.Content})
	if code != http.StatusOK {
		t.Fatalf("update returned %d", code)
	}
	code, resp = ts.do(t, "POST", "/api/launch-agents/view", map[string]any{"label": label})
	if code != http.StatusOK {
		t.Fatalf("second view returned %d", code)
	}
	var viewed2 struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(resp.Data, &viewed2); err != nil {
		t.Fatalf("decode second view: %v", err)
	}
	if viewed2.Content != viewed.Content {
		t.Fatalf("view/update did not round-trip")
	}

	// Bad content rejected with 400.
	code, resp = ts.do(t, "POST", "/api/launch-agents/update", map[string]any{"label": label, "content": "garbage"})
	if code != http.StatusBadRequest || resp.Code != "validation" {
		t.Fatalf("expected 400 validation, got %d %q", code, resp.Code)
	}
}

func TestMasterConfigEndpoints(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, "POST", "/api/launch-agents/create", map[string]any{"target": ts.target})
	if code != http.StatusOK {
		t.Fatalf("create returned %d", code)
	}

	code, resp := ts.do(t, "GET", "/api/config/launch-agents", nil)
	if code != http.StatusOK {
		t.Fatalf("mirror list returned %d", code)
	}
	var entries []struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Label != "com.roostd.kiosk" {
		t.Fatalf("mirror not updated by create: %+v", entries)
	}

	req := httptest.NewRequest("DELETE", "/api/config/launch-agents/com.roostd.kiosk", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("mirror delete returned %d", w.Code)
	}

	code, resp = ts.do(t, "GET", "/api/config/master", nil)
	if code != http.StatusOK {
		t.Fatalf("master get returned %d", code)
	}
	var doc struct {
		Agents []any `json:"agents"`
	}
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		t.Fatalf("decode master: %v", err)
	}
	if len(doc.Agents) != 0 {
		t.Fatalf("mirror delete did not stick: %+v", doc)
	}
}
