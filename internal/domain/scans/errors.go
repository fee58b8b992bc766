package scans

import (
	"errors"
	"fmt"
)

// ErrReportFailed means the service gave up building the report (failed or cancelled).
var ErrReportFailed = errors.New("report generation failed on scanning service")

// GatewayError wraps any failure talking to the scanning service.
type GatewayError struct {
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	if e.Op == "" {
		return "gateway: " + msg
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ReportGenerationTimeout is returned when the report never became ready
// within the attempt budget.
type ReportGenerationTimeout struct {
	ScanID   ScanID
	Attempts int
}

func (e *ReportGenerationTimeout) Error() string {
	return fmt.Sprintf("report for scan %s not ready after %d attempts", e.ScanID, e.Attempts)
}
