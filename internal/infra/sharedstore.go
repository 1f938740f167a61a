// Package infra implements infrastructure concerns (storage, process,
// registry, external-service bridges).
package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/abduljabar5/khushood/internal/domain"
)

// FileStore implements domain.SharedStore with one file per key in a
// directory both processes can reach. Every write is a full snapshot
// (write temp + atomic rename), so a crash mid-write never leaves a
// torn value and there is no need for cross-process locking on reads.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed shared store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Get returns the value for key, or domain.ErrKeyNotFound.
func (s *FileStore) Get(key string) ([]byte, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set writes the value for key atomically (temp file + rename), serialized
// against concurrent writers from the other process with a file lock.
func (s *FileStore) Set(key string, value []byte) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	lockFile, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	// Temp file is unique per process to avoid a rename race
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, value, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// keyPath maps a key to its file, rejecting anything that could escape the
// store directory.
func (s *FileStore) keyPath(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key[0] == '.' {
		return "", fmt.Errorf("invalid store key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Ensure FileStore implements domain.SharedStore.
var _ domain.SharedStore = (*FileStore)(nil)
