package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store used by tests and previews.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Get returns the blob stored at path.
func (s *MemStore) Get(ctx context.Context, path string) ([]byte, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, errCtx
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[path]
	if !ok {
		return nil, fmt.Errorf("mem store: get %s: %w", path, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores data at path.
func (s *MemStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return "", errCtx
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[path] = stored
	return path, nil
}

// Exists reports whether a blob is stored at path.
func (s *MemStore) Exists(ctx context.Context, path string) (bool, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return false, errCtx
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[path]
	return ok, nil
}

// Delete removes the blob stored at path.
func (s *MemStore) Delete(ctx context.Context, path string) error {
	if errCtx := ctx.Err(); errCtx != nil {
		return errCtx
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[path]; !ok {
		return fmt.Errorf("mem store: delete %s: %w", path, ErrNotFound)
	}
	delete(s.blobs, path)
	return nil
}
