package registry

import (
	"context"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// Store port (durable key-value backing for the registry).
// Load reads the whole mapping, Save rewrites it.
type Store interface {
	Load(ctx context.Context) (map[scans.ScanID]ProcessedRecord, error)
	Save(ctx context.Context, records map[scans.ScanID]ProcessedRecord) error
}
