package scans

import (
	"time"
)

// ID tipe untuk Scan
type ScanID string

// Status enum, mirrors current_session.status on the scanning service
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
)

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Total sums every severity bucket.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// Scan is one completed assessment run as reported by the scanning service.
// It is read-only once fetched.
type Scan struct {
	ID          ScanID         `json:"scan_id"`
	TargetID    string         `json:"target_id"`
	Target      string         `json:"target"`
	CompletedAt time.Time      `json:"completed_at"`
	Status      Status         `json:"status"`
	Counts      SeverityCounts `json:"counts"`
}

// ReportRequest asks the service to build a report for one scan.
type ReportRequest struct {
	ScanID     ScanID
	TemplateID string
}

// ReportHandle identifies a report the service is building.
type ReportHandle struct {
	ReportID string
	ScanID   ScanID
}

// ReportArtifact is a downloaded report, held only for one delivery attempt.
type ReportArtifact struct {
	Filename    string
	ContentType string
	Content     []byte
	// Handle is the report this artifact was downloaded from.
	Handle ReportHandle
}
