package registry

import (
	"time"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// ProcessedRecord marks a scan whose report was delivered. It is never removed.
type ProcessedRecord struct {
	ScanID      scans.ScanID `json:"scan_id"`
	ProcessedAt time.Time    `json:"processed_at"`
}
