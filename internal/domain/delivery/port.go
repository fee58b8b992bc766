package delivery

import (
	"context"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// Notifier port (interface untuk pengiriman report).
// Send returns only after the message was accepted or definitely failed.
type Notifier interface {
	Send(ctx context.Context, artifact scans.ReportArtifact, scan scans.Scan) error
}
