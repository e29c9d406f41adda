package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideBase is returned when a relative path resolves outside the storage root.
var ErrOutsideBase = errors.New("path escapes storage root")

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage base directory required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

// Base returns the absolute storage root.
func (s *LocalStorage) Base() string {
	return s.baseDir
}

// WriteAtomic writes data to a sibling temp file, verifies it and renames it over the target.
// The previous content survives any failure before the rename.
func (s *LocalStorage) WriteAtomic(rel string, data []byte) error {
	path, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare directory for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", rel, err)
	}

	written, err := os.ReadFile(tmpName)
	if err != nil || !bytes.Equal(written, data) {
		cleanup()
		if err == nil {
			err = errors.New("content mismatch after write")
		}
		return fmt.Errorf("verify %s: %w", rel, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", rel, err)
	}
	return nil
}

// Save writes the given bytes to the relative path and returns it.
func (s *LocalStorage) Save(rel string, data []byte) (string, error) {
	if err := s.WriteAtomic(rel, data); err != nil {
		return "", err
	}
	return rel, nil
}

// SaveStream copies from reader into the target file path.
func (s *LocalStorage) SaveStream(rel string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stream for %s: %w", rel, err)
	}
	return s.Save(rel, data)
}

// ReadFile returns the content stored at rel.
func (s *LocalStorage) ReadFile(rel string) ([]byte, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Exists reports whether a regular file is stored at rel.
func (s *LocalStorage) Exists(rel string) (bool, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(rel string) (*os.File, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rel, err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(rel string) error {
	path, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	return nil
}

// CleanupOlderThan removes files older than the provided TTL and returns deleted names.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup %s: %w", s.baseDir, err)
	}
	return deleted, nil
}

// Resolve maps a slash-separated relative path onto disk, rejecting anything outside the root.
func (s *LocalStorage) Resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideBase)
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	within, err := filepath.Rel(s.baseDir, path)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideBase)
	}
	return path, nil
}
