package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// statusServer serves a mutable snapshot set.
type statusServer struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (s *statusServer) set(snaps []Snapshot) {
	s.mu.Lock()
	s.snaps = snaps
	s.mu.Unlock()
}

func (s *statusServer) handler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	snaps := append([]Snapshot(nil), s.snaps...)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": snaps})
}

func TestWatcherFiresOnChange(t *testing.T) {
	ss := &statusServer{snaps: []Snapshot{{Label: "com.roostd.kiosk", Loaded: true}}}
	srv := httptest.NewServer(http.HandlerFunc(ss.handler))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})

	changes := make(chan []Snapshot, 8)
	w := NewWatcher(c, 20*time.Millisecond, func(snaps []Snapshot) {
		changes <- snaps
	})
	w.Start(context.Background())
	defer w.Stop()

	// First successful tick always fires.
	select {
	case snaps := <-changes:
		if len(snaps) != 1 || snaps[0].Running {
			t.Fatalf("unexpected first callback %+v", snaps)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no callback for initial state")
	}

	// A state change fires again.
	pid := 7
	ss.set([]Snapshot{{Label: "com.roostd.kiosk", Loaded: true, Running: true, PID: &pid}})
	select {
	case snaps := <-changes:
		if !snaps[0].IsRunning() {
			t.Fatalf("change callback carries stale data %+v", snaps)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no callback after change")
	}

	if last := w.Last(); len(last) != 1 || !last[0].IsRunning() {
		t.Fatalf("Last() stale: %+v", last)
	}
}

func TestWatcherPauseResume(t *testing.T) {
	ss := &statusServer{snaps: []Snapshot{{Label: "com.roostd.kiosk", Loaded: true}}}
	srv := httptest.NewServer(http.HandlerFunc(ss.handler))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})

	changes := make(chan []Snapshot, 8)
	w := NewWatcher(c, 20*time.Millisecond, func(snaps []Snapshot) {
		changes <- snaps
	})
	w.Start(context.Background())
	defer w.Stop()

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatalf("no initial callback")
	}

	w.Pause()
	// Drain anything already in flight, then expect silence.
	time.Sleep(60 * time.Millisecond)
	for len(changes) > 0 {
		<-changes
	}
	ss.set([]Snapshot{{Label: "com.roostd.kiosk", Loaded: false}})
	select {
	case snaps := <-changes:
		t.Fatalf("paused watcher fired: %+v", snaps)
	case <-time.After(100 * time.Millisecond):
	}

	// Resume forgets previous state, so the next tick fires even though
	// the server state matches what was last delivered.
	w.Resume()
	select {
	case snaps := <-changes:
		if snaps[0].Loaded {
			t.Fatalf("resume delivered stale data %+v", snaps)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no callback after resume")
	}
}

func TestWatcherSurvivesFailedTicks(t *testing.T) {
	ss := &statusServer{snaps: []Snapshot{{Label: "com.roostd.kiosk", Loaded: true}}}
	failing := true
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		f := failing
		mu.Unlock()
		if f {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		ss.handler(w, r)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})

	changes := make(chan []Snapshot, 8)
	w := NewWatcher(c, 20*time.Millisecond, func(snaps []Snapshot) {
		changes <- snaps
	})
	w.Start(context.Background())
	defer w.Stop()

	// While the daemon errors, no callbacks.
	select {
	case snaps := <-changes:
		t.Fatalf("callback from failing daemon: %+v", snaps)
	case <-time.After(100 * time.Millisecond):
	}

	// Recovery: next tick retries and delivers.
	mu.Lock()
	failing = false
	mu.Unlock()
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not recover after failures")
	}
}
