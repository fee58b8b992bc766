package postgres

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryStore_QuotesTable(t *testing.T) {
	s, err := NewRegistryStore(nil, "processed_scans")
	require.NoError(t, err)
	assert.Equal(t, `"processed_scans"`, s.table)

	_, err = NewRegistryStore(nil, `x"; DROP TABLE y; --`)
	assert.Error(t, err)
}

func TestDriverRegistered(t *testing.T) {
	assert.Contains(t, sql.Drivers(), "postgres")
}
