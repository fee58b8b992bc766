package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/acunetix-report-sender/internal/config"
)

func TestWriteDefaultConfig_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, writeDefaultConfig(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultYAML(), data)

	err = writeDefaultConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSinceFor(t *testing.T) {
	assert.True(t, sinceFor(0).IsZero())

	got := sinceFor(time.Hour)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), got, time.Minute)
}
