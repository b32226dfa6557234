package storage

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested blob does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store is the blob store consumed by the mapping pipeline. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the blob stored at path.
	Get(ctx context.Context, path string) ([]byte, error)
	// Put stores data at path and returns the canonical path.
	Put(ctx context.Context, path string, data []byte) (string, error)
	// Exists reports whether a blob is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes the blob stored at path.
	Delete(ctx context.Context, path string) error
}
