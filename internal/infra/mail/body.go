package mail

import (
	"bytes"
	"html/template"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

var bodyTmpl = template.Must(template.New("body").Parse(`<html>
  <head>
    <style>
      body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
      table { border-collapse: collapse; width: 100%; margin: 15px 0; }
      th { background-color: #f2f2f2; text-align: left; padding: 8px; border: 1px solid #ddd; }
      td { padding: 8px; border: 1px solid #ddd; }
      .summary { background-color: #f9f9f9; padding: 10px; border-left: 4px solid #c0392b; }
      .footer { font-size: 12px; color: #777; margin-top: 20px; }
    </style>
  </head>
  <body>
    <h2>{{.Title}}</h2>
    <p>Please find attached the report for the latest completed Acunetix scan.</p>
    {{- if .Summary}}
    <p class="summary">{{.Summary}}</p>
    {{- end}}
    <table>
      <thead>
        <tr><th>Target</th><th>Vulnerabilities</th><th>Scan Date</th><th>Report</th></tr>
      </thead>
      <tbody>
        <tr>
          <td>{{.Target}}</td>
          <td>critical: {{.Counts.Critical}}, high: {{.Counts.High}}, medium: {{.Counts.Medium}}, low: {{.Counts.Low}}, info: {{.Counts.Info}}</td>
          <td>{{.ScanDate}}</td>
          <td>{{.Filename}}</td>
        </tr>
      </tbody>
    </table>
    <div class="footer">
      <p>Scan ID {{.ScanID}}. This is an automated message. Please do not reply to this email.</p>
    </div>
  </body>
</html>
`))

type bodyData struct {
	Title    string
	Target   string
	ScanID   scans.ScanID
	ScanDate string
	Filename string
	Counts   scans.SeverityCounts
	Summary  string
}

// renderBody escapes every scan field; targets come from user-entered
// descriptions on the scanning service.
func renderBody(scan scans.Scan, filename, summary string) (string, error) {
	date := "-"
	if !scan.CompletedAt.IsZero() {
		date = scan.CompletedAt.UTC().Format("2006-01-02 15:04:05 MST")
	}
	data := bodyData{
		Title:    subject(scan),
		Target:   targetName(scan),
		ScanID:   scan.ID,
		ScanDate: date,
		Filename: filename,
		Counts:   scan.Counts,
		Summary:  summary,
	}
	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func subject(scan scans.Scan) string {
	return "Acunetix Scan Report - " + targetName(scan)
}

func targetName(scan scans.Scan) string {
	if scan.Target == "" {
		return string(scan.ID)
	}
	return scan.Target
}
