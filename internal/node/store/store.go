// Package store persists a verifier node's enrollment records. The store is
// deliberately a whole-map load / whole-map save key-value surface: records
// are small, re-registration overwrites wholesale, and the node serializes
// writers, so per-key operations would buy nothing.
package store

import (
	"context"

	"ciphera/internal/identity"
)

// Store is a node-local enrollment store keyed by identity (email).
type Store interface {
	// Load returns the full enrollment map. Implementations degrade to an
	// empty map when the underlying data is corrupt or missing.
	Load(ctx context.Context) (map[string]identity.Record, error)

	// Save replaces the full enrollment map.
	Save(ctx context.Context, records map[string]identity.Record) error
}
