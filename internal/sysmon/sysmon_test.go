package sysmon

import (
	"context"
	"testing"
	"time"
)

func TestCollect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m, err := Collect(ctx)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if m.Memory.Total == 0 {
		t.Fatalf("no memory stats collected")
	}
	if m.Uptime <= 0 {
		t.Fatalf("uptime not collected")
	}
	if m.CPU.Cores <= 0 {
		t.Fatalf("no cores reported")
	}
}

func TestCollectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Collect(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
