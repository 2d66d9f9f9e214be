// Package registry persists agent descriptors. The registry plus the plist
// files on disk are the source of truth; the master config document is only
// a mirror.
package registry

import (
	"context"

	"github.com/roostd/roostd/internal/agent"
)

// Store is the persistence interface for descriptors, keyed by label.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// Create inserts a new descriptor. A duplicate label yields
	// agent.ErrConflict, never an overwrite.
	Create(ctx context.Context, d agent.Descriptor) error
	// Get returns agent.ErrNotFound for unknown labels.
	Get(ctx context.Context, label string) (agent.Descriptor, error)
	List(ctx context.Context) ([]agent.Descriptor, error)
	SetInstalled(ctx context.Context, label string, installed bool) error
	// Delete is idempotent; deleting an absent label is not an error.
	Delete(ctx context.Context, label string) error
	Close() error
}
