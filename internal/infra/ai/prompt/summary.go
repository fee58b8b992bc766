package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// SystemPrompt sets tone and limits for the email summary.
func SystemPrompt() string {
	return `You are a senior application security analyst writing for a busy engineering manager.
Write a plain-text executive summary of a web vulnerability scan in at most 4 sentences.
- Lead with the overall risk (critical, high, medium, low, or none).
- Mention the counts that matter most and what should be fixed first.
- No markdown, no lists, no greetings, no speculation about specific CVEs.`
}

// UserPrompt describes one scan.
func UserPrompt(scan scans.Scan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n", nonEmpty(scan.Target))
	if !scan.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Completed: %s\n", scan.CompletedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	c := scan.Counts
	fmt.Fprintf(&b, "Findings: critical=%d high=%d medium=%d low=%d info=%d (total %d)\n",
		c.Critical, c.High, c.Medium, c.Low, c.Info, c.Total())
	return b.String()
}

func nonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
