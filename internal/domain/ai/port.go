package ai

import (
	"context"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// Summarizer writes a short executive summary for a scan.
type Summarizer interface {
	Summarize(ctx context.Context, scan scans.Scan) (string, error)
}
