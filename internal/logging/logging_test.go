package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailer.log")
	log, err := New(Options{Level: "debug", File: path, JSON: true})
	require.NoError(t, err)

	log.Debug("hello", zap.String("scan_id", "s1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scan_id":"s1"`)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}
