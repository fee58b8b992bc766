package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// FileStore keeps the registry in one JSON file.
type FileStore struct {
	path string
}

var _ domreg.Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns an empty mapping when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) (map[scans.ScanID]domreg.ProcessedRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[scans.ScanID]domreg.ProcessedRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

// Save replaces the file atomically: write a temp file in the same
// directory, fsync, rename over the old one.
func (s *FileStore) Save(_ context.Context, records map[scans.ScanID]domreg.ProcessedRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return syncDir(dir)
}

// syncDir flushes the directory entry so the rename survives a power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}

// Ping checks the registry directory is reachable.
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(s.path))
	}
	return nil
}
