package ai

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/ai"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// Service makes the AI summary optional: any failure yields an empty summary
// and delivery goes ahead without it.
type Service struct {
	client  ai.Summarizer
	timeout time.Duration
	log     *zap.Logger
}

func NewService(client ai.Summarizer, timeout time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, timeout: timeout, log: log}
}

// Summary returns the model's summary for scan, or "" when unavailable.
func (s *Service) Summary(ctx context.Context, scan scans.Scan) string {
	if s == nil || s.client == nil {
		return ""
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err := s.client.Summarize(ctx, scan)
	if err != nil {
		if errors.Is(err, ai.ErrQuotaExceeded) {
			s.log.Warn("ai quota exceeded, sending without summary", zap.String("scan_id", string(scan.ID)))
		} else {
			s.log.Warn("ai summary failed, sending without summary", zap.String("scan_id", string(scan.ID)), zap.Error(err))
		}
		return ""
	}
	return text
}
