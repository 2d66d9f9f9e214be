package client

import (
	"context"
	"sync"
	"time"
)

// ChangeFunc receives the full snapshot set on the first successful tick and
// after every tick whose result differs from the previous one.
type ChangeFunc func(snapshots []Snapshot)

// Watcher polls the daemon's status endpoint on a fixed interval and invokes
// a callback when the snapshot set changes. A failed tick is logged and the
// previous snapshots are kept; the next tick retries.
type Watcher struct {
	client   *Client
	interval time.Duration
	onChange ChangeFunc

	mu     sync.Mutex
	paused bool
	last   []Snapshot
	seen   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher builds a watcher around an existing client. interval <= 0
// defaults to 5s.
func NewWatcher(c *Client, interval time.Duration, onChange ChangeFunc) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{client: c, interval: interval, onChange: onChange}
}

// Start begins polling until Stop is called or ctx is cancelled. Calling
// Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
}

// Stop halts polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Pause suspends ticks without tearing down the loop, for when the dashboard
// tab is hidden.
func (w *Watcher) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume re-enables ticks and forgets the previous snapshots so the next
// successful tick always fires the callback with fresh state.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.paused = false
	w.last = nil
	w.seen = false
	w.mu.Unlock()
}

// Last returns the most recent successfully fetched snapshots.
func (w *Watcher) Last() []Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Snapshot, len(w.last))
	copy(out, w.last)
	return out
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	w.mu.Lock()
	paused := w.paused
	w.mu.Unlock()
	if paused {
		return
	}

	snaps, err := w.client.Status(ctx)
	if err != nil {
		w.client.logger.Warn("status poll failed", "error", err)
		return
	}

	w.mu.Lock()
	changed := !w.seen || !snapshotsEqual(w.last, snaps)
	w.last = snaps
	w.seen = true
	w.mu.Unlock()

	if changed && w.onChange != nil {
		w.onChange(snaps)
	}
}

func snapshotsEqual(a, b []Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !snapshotEqual(a[i], b[i]) {
			return false
		}
	}
	return true
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
