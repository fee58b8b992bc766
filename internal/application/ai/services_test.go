package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domai "github.com/bryanwahyu/acunetix-report-sender/internal/domain/ai"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

type stubSummarizer struct {
	text string
	err  error
}

func (s stubSummarizer) Summarize(context.Context, scans.Scan) (string, error) { return s.text, s.err }

func TestSummary(t *testing.T) {
	scan := scans.Scan{ID: "s1"}

	assert.Equal(t, "ok", NewService(stubSummarizer{text: "ok"}, time.Second, nil).Summary(context.Background(), scan))
	assert.Empty(t, NewService(stubSummarizer{err: domai.ErrQuotaExceeded}, 0, nil).Summary(context.Background(), scan))
	assert.Empty(t, NewService(stubSummarizer{err: errors.New("boom")}, 0, nil).Summary(context.Background(), scan))

	var nilSvc *Service
	assert.Empty(t, nilSvc.Summary(context.Background(), scan))
}
