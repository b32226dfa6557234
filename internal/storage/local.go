package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore persists blobs under a root directory on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore constructs a LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("local store: empty root dir")
	}
	abs, errAbs := filepath.Abs(trimmed)
	if errAbs != nil {
		return nil, fmt.Errorf("local store: resolve root: %w", errAbs)
	}
	if errMkdir := os.MkdirAll(abs, 0o755); errMkdir != nil {
		return nil, fmt.Errorf("local store: create root: %w", errMkdir)
	}
	return &LocalStore{root: abs}, nil
}

// resolve maps a store path to a filesystem path, rejecting traversal.
func (s *LocalStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimSpace(path))
	if cleaned == "/" {
		return "", fmt.Errorf("local store: empty path")
	}
	full := filepath.Join(s.root, cleaned)
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("local store: path escapes root: %s", path)
	}
	return full, nil
}

// Get returns the blob stored at path.
func (s *LocalStore) Get(ctx context.Context, path string) ([]byte, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, errCtx
	}
	full, errResolve := s.resolve(path)
	if errResolve != nil {
		return nil, errResolve
	}
	data, errRead := os.ReadFile(full)
	if errRead != nil {
		if errors.Is(errRead, fs.ErrNotExist) {
			return nil, fmt.Errorf("local store: get %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("local store: get %s: %w", path, errRead)
	}
	return data, nil
}

// Put stores data at path, creating parent directories as needed.
func (s *LocalStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return "", errCtx
	}
	full, errResolve := s.resolve(path)
	if errResolve != nil {
		return "", errResolve
	}
	if errMkdir := os.MkdirAll(filepath.Dir(full), 0o755); errMkdir != nil {
		return "", fmt.Errorf("local store: put %s: %w", path, errMkdir)
	}
	if errWrite := os.WriteFile(full, data, 0o644); errWrite != nil {
		return "", fmt.Errorf("local store: put %s: %w", path, errWrite)
	}
	return path, nil
}

// Exists reports whether a blob is stored at path.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return false, errCtx
	}
	full, errResolve := s.resolve(path)
	if errResolve != nil {
		return false, errResolve
	}
	if _, errStat := os.Stat(full); errStat != nil {
		if errors.Is(errStat, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("local store: stat %s: %w", path, errStat)
	}
	return true, nil
}

// Delete removes the blob stored at path.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if errCtx := ctx.Err(); errCtx != nil {
		return errCtx
	}
	full, errResolve := s.resolve(path)
	if errResolve != nil {
		return errResolve
	}
	if errRemove := os.Remove(full); errRemove != nil {
		if errors.Is(errRemove, fs.ErrNotExist) {
			return fmt.Errorf("local store: delete %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("local store: delete %s: %w", path, errRemove)
	}
	return nil
}
