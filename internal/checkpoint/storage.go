// Package checkpoint implements the checkpoint manager of spec.md §4.I:
// atomic, checksum-verified persistence of workflow state through a
// pluggable storage backend, with schema-version checks and per-workflow
// pruning.
package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend is the storage abstraction a checkpoint manager persists
// through: store/load/list/delete/rename on opaque keys, grounded on
// the teacher's FileStore pattern in
// internal/infrastructure/capabilities/file_store.go.
type Backend interface {
	Store(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
	Rename(ctx context.Context, oldKey, newKey string) error
}

// FileBackend is a Backend that stores each key as a file under a base
// directory, the file-based storage spec.md §6 describes.
type FileBackend struct {
	baseDir string
}

// NewFileBackend creates a FileBackend rooted at baseDir, creating the
// directory if it does not exist.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	//nolint:gosec // G301: 0o755 is standard for a checkpoint data directory
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create base dir: %w", err)
	}
	return &FileBackend{baseDir: baseDir}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.baseDir, filepath.Clean(string(filepath.Separator)+key))
}

func (b *FileBackend) Store(_ context.Context, key string, data []byte) error {
	return os.WriteFile(b.path(key), data, 0o600)
}

func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(b.path(key))
}

func (b *FileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			keys = append(keys, entry.Name())
		}
	}
	return keys, nil
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *FileBackend) Rename(_ context.Context, oldKey, newKey string) error {
	return os.Rename(b.path(oldKey), b.path(newKey))
}
