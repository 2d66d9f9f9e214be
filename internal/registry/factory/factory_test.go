package factory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestEmptyDSNRejected(t *testing.T) {
	if _, err := NewFromDSN(""); err == nil {
		t.Fatalf("empty DSN accepted")
	}
}

func TestBarePathIsSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := NewFromDSN(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
}

func TestSqliteSchemeStripped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := NewFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
}
