package reports

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/acunetix-report-sender/internal/application"
	domain "github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// Options controls one Generate call.
type Options struct {
	TemplateID string
	// MaxRetries is the attempt budget; 0 still checks once.
	MaxRetries int
	// RetryDelay is the pause between attempts; negative is treated as 0.
	RetryDelay time.Duration
}

// Generator turns a completed scan into a downloadable report, waiting out
// the scanning service's asynchronous build.
type Generator struct {
	Gateway domain.Gateway
	Sleeper application.Sleeper
	Clock   application.Clock
	Log     *zap.Logger
}

// NewGenerator wires a Generator with real time.
func NewGenerator(gw domain.Gateway, log *zap.Logger) *Generator {
	return &Generator{
		Gateway: gw,
		Sleeper: application.SystemSleeper{},
		Clock:   application.SystemClock{},
		Log:     log,
	}
}

// Generate requests a report for scan and polls until it can be downloaded.
//
// Every failed request, every readiness check and every failed download uses
// one attempt. The budget is max(MaxRetries, 1). When it runs out a
// *ReportGenerationTimeout is returned. ErrReportFailed from the gateway ends
// the loop at once.
func (g *Generator) Generate(ctx context.Context, scan domain.Scan, opts Options) (domain.ReportArtifact, error) {
	log := g.logger().With(zap.String("scan_id", string(scan.ID)))

	budget := opts.MaxRetries
	if budget < 1 {
		budget = 1
	}
	delay := opts.RetryDelay
	if delay < 0 {
		delay = 0
	}

	var (
		handle    domain.ReportHandle
		requested bool
		attempts  int
	)
	for attempts < budget {
		if !requested {
			h, err := g.Gateway.RequestReport(ctx, domain.ReportRequest{ScanID: scan.ID, TemplateID: opts.TemplateID})
			if err != nil {
				attempts++
				log.Warn("report request failed", zap.Int("attempt", attempts), zap.Int("max_attempts", budget), zap.Error(err))
				if err := g.wait(ctx, attempts, budget, delay); err != nil {
					return domain.ReportArtifact{}, err
				}
				continue
			}
			handle, requested = h, true
			log.Info("report requested", zap.String("report_id", h.ReportID))
		}

		ready, err := g.Gateway.CheckReportReady(ctx, handle)
		attempts++
		switch {
		case errors.Is(err, domain.ErrReportFailed):
			log.Error("report generation failed on service", zap.String("report_id", handle.ReportID))
			return domain.ReportArtifact{}, fmt.Errorf("scan %s report %s: %w", scan.ID, handle.ReportID, err)
		case err != nil:
			log.Warn("report status check failed", zap.Int("attempt", attempts), zap.Int("max_attempts", budget), zap.Error(err))
		case ready:
			artifact, err := g.Gateway.DownloadReport(ctx, handle)
			if err == nil {
				artifact.Filename = g.filename(scan, artifact.Filename)
				artifact.Handle = handle
				log.Info("report ready", zap.String("report_id", handle.ReportID), zap.String("filename", artifact.Filename), zap.Int("bytes", len(artifact.Content)))
				return artifact, nil
			}
			log.Warn("report download failed", zap.Int("attempt", attempts), zap.Int("max_attempts", budget), zap.Error(err))
		default:
			log.Info("report not ready yet", zap.String("report_id", handle.ReportID), zap.Int("attempt", attempts), zap.Int("max_attempts", budget))
		}

		if err := g.wait(ctx, attempts, budget, delay); err != nil {
			return domain.ReportArtifact{}, err
		}
	}

	log.Warn("report did not complete within the expected time", zap.Int("attempts", attempts))
	return domain.ReportArtifact{}, &domain.ReportGenerationTimeout{ScanID: scan.ID, Attempts: attempts}
}

// wait sleeps between attempts but never after the last one.
func (g *Generator) wait(ctx context.Context, attempts, budget int, delay time.Duration) error {
	if attempts >= budget {
		return nil
	}
	if g.Sleeper == nil {
		return application.SystemSleeper{}.Sleep(ctx, delay)
	}
	return g.Sleeper.Sleep(ctx, delay)
}

func (g *Generator) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

func (g *Generator) now() time.Time {
	if g.Clock == nil {
		return time.Now()
	}
	return g.Clock.Now()
}

// filename builds "<target>_<timestamp><ext>" keeping the extension the
// service used for the download.
func (g *Generator) filename(scan domain.Scan, downloaded string) string {
	ext := filepath.Ext(downloaded)
	if ext == "" {
		ext = ".html"
	}
	name := scan.Target
	if name == "" {
		name = "report"
	}
	return SafeName(name) + "_" + g.now().Format("20060102_150405") + ext
}

// SafeName keeps letters, digits, '-', '_' and '.'; everything else becomes '_'.
func SafeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
