package delivery

import (
	"fmt"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// DeliveryError is returned when a report email could not be sent.
type DeliveryError struct {
	ScanID  scans.ScanID
	Message string
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver report for scan %s: %s: %v", e.ScanID, e.Message, e.Err)
	}
	return fmt.Sprintf("deliver report for scan %s: %s", e.ScanID, e.Message)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
