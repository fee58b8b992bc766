package scans

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/acunetix-report-sender/internal/application"
	"github.com/bryanwahyu/acunetix-report-sender/internal/application/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/application/reports"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/delivery"
	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	domain "github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// ReportGenerator is the part of reports.Generator the orchestrator needs.
type ReportGenerator interface {
	Generate(ctx context.Context, scan domain.Scan, opts reports.Options) (domain.ReportArtifact, error)
}

// Options for a processing cycle.
type Options struct {
	Report         reports.Options
	CleanupReports bool
}

// ErrCycleRunning is returned by TryRunCycle while another cycle is active.
var ErrCycleRunning = errors.New("a processing cycle is already running")

// Service implements the scan processing cycle.
// One cycle at a time; RunCycle callers serialise, or go through TryRunCycle.
type Service struct {
	Gateway   domain.Gateway
	Generator ReportGenerator
	Notifier  delivery.Notifier
	Registry  *registry.Registry
	Clock     application.Clock
	Log       *zap.Logger
	Options   Options

	running sync.Mutex
}

//
// ==== CYCLE ====
//

// State of a scan inside one cycle. Scans only move forward.
type State string

const (
	StateDiscovered      State = "discovered"
	StateReportRequested State = "report_requested"
	StateReportReady     State = "report_ready"
	StateDelivered       State = "delivered"
	StateRecorded        State = "recorded"
	StateFailed          State = "failed"
)

// ErrorKind classifies a per-scan failure for logs and summaries.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindGateway       ErrorKind = "gateway"
	KindReportTimeout ErrorKind = "report_timeout"
	KindReportFailed  ErrorKind = "report_failed"
	KindDelivery      ErrorKind = "delivery"
	KindPersistence   ErrorKind = "persistence"
	KindCancelled     ErrorKind = "cancelled"
)

// ScanOutcome is what happened to one candidate scan.
type ScanOutcome struct {
	ScanID    domain.ScanID `json:"scan_id"`
	State     State         `json:"state"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ProcessingSummary hasil satu cycle
type ProcessingSummary struct {
	CycleID                 string        `json:"cycle_id"`
	Discovered              int           `json:"discovered"`
	Processed               int           `json:"processed"`
	Failed                  int           `json:"failed"`
	SkippedAlreadyProcessed int           `json:"skipped_already_processed"`
	SkippedOutOfWindow      int           `json:"skipped_out_of_window"`
	Outcomes                []ScanOutcome `json:"outcomes"`
	StartedAt               time.Time     `json:"started_at"`
	FinishedAt              time.Time     `json:"finished_at"`
}

// RunCycle fetches completed scans and delivers a report for every scan not
// yet in the registry. since, when non-zero, also drops scans completed before
// it. Only a failure to list scans is returned as an error; per-scan failures
// are logged, counted, and retried on the next cycle.
func (s *Service) RunCycle(ctx context.Context, since time.Time) (ProcessingSummary, error) {
	sum := ProcessingSummary{CycleID: uuid.New().String(), StartedAt: s.now()}
	log := s.logger().With(zap.String("cycle_id", sum.CycleID))

	list, err := s.Gateway.ListCompletedScans(ctx)
	if err != nil {
		sum.FinishedAt = s.now()
		log.Error("could not list completed scans", zap.Error(err))
		var gerr *domain.GatewayError
		if errors.As(err, &gerr) {
			return sum, err
		}
		return sum, &domain.GatewayError{Op: "list scans", Err: err}
	}
	sum.Discovered = len(list)
	log.Info("found completed scans", zap.Int("count", len(list)))

	for _, scan := range list {
		if ctx.Err() != nil {
			// remaining scans stay unrecorded and are picked up next cycle
			log.Warn("cycle cancelled, leaving remaining scans for next cycle", zap.Error(ctx.Err()))
			break
		}
		switch s.skipReason(scan, since) {
		case skipProcessed:
			sum.SkippedAlreadyProcessed++
			log.Debug("skipping already processed scan", zap.String("scan_id", string(scan.ID)))
			continue
		case skipOutOfWindow:
			sum.SkippedOutOfWindow++
			log.Debug("skipping scan outside checkpoint window", zap.String("scan_id", string(scan.ID)), zap.Time("completed_at", scan.CompletedAt))
			continue
		}

		out := s.processScan(ctx, log, scan)
		sum.Outcomes = append(sum.Outcomes, out)
		if out.State == StateRecorded {
			sum.Processed++
		} else {
			sum.Failed++
		}
	}

	sum.FinishedAt = s.now()
	log.Info("cycle finished",
		zap.Int("discovered", sum.Discovered),
		zap.Int("processed", sum.Processed),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped_already_processed", sum.SkippedAlreadyProcessed),
		zap.Int("skipped_out_of_window", sum.SkippedOutOfWindow),
		zap.Duration("duration", sum.FinishedAt.Sub(sum.StartedAt)),
	)
	return sum, nil
}

// TryRunCycle runs a cycle unless one is already in progress, in which case
// it returns ErrCycleRunning without touching the gateway.
func (s *Service) TryRunCycle(ctx context.Context, since time.Time) (ProcessingSummary, error) {
	if !s.running.TryLock() {
		return ProcessingSummary{}, ErrCycleRunning
	}
	defer s.running.Unlock()
	return s.RunCycle(ctx, since)
}

// processScan walks one scan through request -> ready -> delivered -> recorded.
func (s *Service) processScan(ctx context.Context, log *zap.Logger, scan domain.Scan) ScanOutcome {
	log = log.With(zap.String("scan_id", string(scan.ID)), zap.String("target", scan.Target))
	out := ScanOutcome{ScanID: scan.ID, State: StateDiscovered}

	fail := func(kind ErrorKind, err error, msg string) ScanOutcome {
		out.State = StateFailed
		out.ErrorKind = kind
		out.Error = err.Error()
		if kind == KindPersistence {
			// delivered but not durable: the next cycle will send this scan again
			log.Error(msg+"; report was delivered and may be sent again", zap.String("error_kind", string(kind)), zap.Error(err))
		} else {
			log.Error(msg, zap.String("error_kind", string(kind)), zap.Error(err))
		}
		return out
	}

	out.State = StateReportRequested
	artifact, err := s.Generator.Generate(ctx, scan, s.Options.Report)
	if err != nil {
		return fail(classify(err), err, "report generation failed")
	}
	out.State = StateReportReady
	if s.Options.CleanupReports {
		// delivered or not, the next cycle requests a fresh report
		defer s.cleanup(context.WithoutCancel(ctx), log, artifact.Handle)
	}

	if err := s.Notifier.Send(ctx, artifact, scan); err != nil {
		kind := KindDelivery
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		return fail(kind, err, "report delivery failed")
	}
	out.State = StateDelivered

	// record even if ctx was cancelled after a confirmed send
	if err := s.Registry.Record(context.WithoutCancel(ctx), scan.ID, s.now()); err != nil {
		return fail(KindPersistence, err, "could not record processed scan")
	}
	out.State = StateRecorded
	log.Info("scan processed")
	return out
}

// cleanup best-effort removal of the generated report on the service.
func (s *Service) cleanup(ctx context.Context, log *zap.Logger, h domain.ReportHandle) {
	cleaner, ok := s.Gateway.(domain.ReportCleaner)
	if !ok || h.ReportID == "" {
		return
	}
	if err := cleaner.DeleteReports(ctx, []domain.ReportHandle{h}); err != nil {
		log.Warn("could not delete report on scanning service", zap.String("report_id", h.ReportID), zap.Error(err))
		return
	}
	log.Debug("deleted report on scanning service", zap.String("report_id", h.ReportID))
}

type skip int

const (
	skipNone skip = iota
	skipProcessed
	skipOutOfWindow
)

// skipReason reports why a cycle would not process scan.
func (s *Service) skipReason(scan domain.Scan, since time.Time) skip {
	switch {
	case s.Registry.Contains(scan.ID):
		return skipProcessed
	case outOfWindow(scan, since):
		return skipOutOfWindow
	}
	return skipNone
}

// Records exposes the registry contents for status endpoints.
func (s *Service) Records() []domreg.ProcessedRecord {
	return s.Registry.Records()
}

// Lookup returns the registry record for id.
func (s *Service) Lookup(id domain.ScanID) (domreg.ProcessedRecord, bool) {
	return s.Registry.Get(id)
}

func outOfWindow(scan domain.Scan, since time.Time) bool {
	return !since.IsZero() && !scan.CompletedAt.IsZero() && scan.CompletedAt.Before(since)
}

func classify(err error) ErrorKind {
	var timeout *domain.ReportGenerationTimeout
	switch {
	case errors.As(err, &timeout):
		return KindReportTimeout
	case errors.Is(err, domain.ErrReportFailed):
		return KindReportFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindGateway
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
