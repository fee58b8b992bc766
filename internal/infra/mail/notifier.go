package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"io"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/delivery"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// Options mirrors the email section of the config file.
type Options struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	UseTLS     bool
}

// SummaryWriter supplies an optional paragraph for the email body.
type SummaryWriter interface {
	Summary(ctx context.Context, scan scans.Scan) string
}

// Notifier sends one email per scan with the report attached.
type Notifier struct {
	opts    Options
	summary SummaryWriter
	send    func(*gomail.Message) error
	log     *zap.Logger
}

var _ delivery.Notifier = (*Notifier)(nil)

// New builds an SMTP notifier. summary may be nil.
func New(opts Options, summary SummaryWriter, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	d := gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	if opts.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: opts.Host, MinVersion: tls.VersionTLS12}
	}
	return &Notifier{
		opts:    opts,
		summary: summary,
		send:    func(m *gomail.Message) error { return d.DialAndSend(m) },
		log:     log,
	}
}

// Send returns only after the SMTP server accepted or rejected the message.
func (n *Notifier) Send(ctx context.Context, artifact scans.ReportArtifact, scan scans.Scan) error {
	if err := ctx.Err(); err != nil {
		return &delivery.DeliveryError{ScanID: scan.ID, Message: "not sent", Err: err}
	}
	if len(n.opts.Recipients) == 0 {
		return &delivery.DeliveryError{ScanID: scan.ID, Message: "no recipients configured"}
	}
	if len(artifact.Content) == 0 {
		return &delivery.DeliveryError{ScanID: scan.ID, Message: "empty report", Err: errors.New("nothing to attach")}
	}

	var summary string
	if n.summary != nil {
		summary = n.summary.Summary(ctx, scan)
	}
	body, err := renderBody(scan, artifact.Filename, summary)
	if err != nil {
		return &delivery.DeliveryError{ScanID: scan.ID, Message: "render body", Err: err}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.opts.From)
	m.SetHeader("To", n.opts.Recipients...)
	m.SetHeader("Subject", subject(scan))
	m.SetBody("text/html", body)
	content := artifact.Content
	m.Attach(artifact.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	}))

	if err := n.send(m); err != nil {
		n.log.Error("failed to send email",
			zap.String("scan_id", string(scan.ID)),
			zap.String("smtp_server", n.opts.Host),
			zap.Error(err),
		)
		return &delivery.DeliveryError{ScanID: scan.ID, Message: "smtp send", Err: err}
	}
	n.log.Info("email sent",
		zap.String("scan_id", string(scan.ID)),
		zap.Strings("recipients", n.opts.Recipients),
		zap.String("attachment", artifact.Filename),
	)
	return nil
}
