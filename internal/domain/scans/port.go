package scans

import "context"

// Gateway port (interface ke scanning service)
type Gateway interface {
	ListCompletedScans(ctx context.Context) ([]Scan, error)
	RequestReport(ctx context.Context, req ReportRequest) (ReportHandle, error)
	CheckReportReady(ctx context.Context, h ReportHandle) (bool, error)
	DownloadReport(ctx context.Context, h ReportHandle) (ReportArtifact, error)
}

// ReportCleaner is implemented by gateways that can remove generated reports
// from the service once they have been delivered.
type ReportCleaner interface {
	DeleteReports(ctx context.Context, handles []ReportHandle) error
}
