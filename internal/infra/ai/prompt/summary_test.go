package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

func TestUserPrompt(t *testing.T) {
	p := UserPrompt(scans.Scan{
		Target:      "shop.example.com",
		CompletedAt: time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC),
		Counts:      scans.SeverityCounts{Critical: 1, High: 2, Low: 3},
	})
	assert.Contains(t, p, "Target: shop.example.com")
	assert.Contains(t, p, "Completed: 2024-03-09 14:05 UTC")
	assert.Contains(t, p, "critical=1 high=2 medium=0 low=3 info=0 (total 6)")

	assert.Contains(t, UserPrompt(scans.Scan{}), "Target: -")
}
