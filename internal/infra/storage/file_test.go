package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "processed_scans.json"))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "processed_scans.json")
	s := NewFileStore(path)
	ts := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

	in := map[scans.ScanID]domreg.ProcessedRecord{
		"s2": {ScanID: "s2", ProcessedAt: ts},
		"s1": {ScanID: "s1", ProcessedAt: ts.Add(time.Minute)},
	}
	require.NoError(t, s.Save(context.Background(), in))

	out, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileStore_SaveFsyncsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, syncDir(dir))
	assert.Error(t, syncDir(filepath.Join(dir, "missing")))
}

func TestFileStore_ReadsPlainIDList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_scans.json")
	require.NoError(t, os.WriteFile(path, []byte(`["a","b",""]`), 0o644))

	out, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Contains(t, out, scans.ScanID("a"))
}

func TestFileStore_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_scans.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStore_SaveFailsOnBadDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := NewFileStore(filepath.Join(blocker, "processed_scans.json"))
	err := s.Save(context.Background(), map[scans.ScanID]domreg.ProcessedRecord{"x": {ScanID: "x"}})
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}
