package registry

import (
	"fmt"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// PersistenceError is returned when a record could not be made durable.
type PersistenceError struct {
	ScanID scans.ScanID
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist processed scan %s: %v", e.ScanID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
