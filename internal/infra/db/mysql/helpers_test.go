package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdent(t *testing.T) {
	q, err := quoteIdent("processed_scans")
	require.NoError(t, err)
	assert.Equal(t, "`processed_scans`", q)

	for _, bad := range []string{"", "1abc", "scans; DROP TABLE x", "a`b"} {
		_, err := quoteIdent(bad)
		assert.Error(t, err, bad)
	}
}
