package acunetix

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

const (
	userAgent   = "Acunetix-Report-Sender/1.0"
	pageSize    = 100
	maxDownload = 64 << 20
	apiPrefix   = "/api/v1"
)

// Options configures the API client.
type Options struct {
	BaseURL   string
	APIKey    string
	VerifySSL bool
	Timeout   time.Duration
	// MaxRetries is the number of transport retries after the first try.
	MaxRetries int
	// BackoffFactor in seconds; the wait before retry n is factor * 2^n.
	BackoffFactor float64
}

// Client talks to the Acunetix v1 REST API. It implements scans.Gateway and
// scans.ReportCleaner.
type Client struct {
	base       string
	apiKey     string
	http       *http.Client
	maxRetries int
	factor     float64
	maxBody    int64
	log        *zap.Logger

	// download locations seen on completed status responses, by report id
	mu        sync.Mutex
	downloads map[string]string
}

var (
	_ domain.Gateway       = (*Client)(nil)
	_ domain.ReportCleaner = (*Client)(nil)
)

func New(opts Options, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("acunetix: invalid base url %q", opts.BaseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.VerifySSL {
		// scanners commonly run with self-signed certificates
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		base:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		http:       &http.Client{Timeout: timeout, Transport: tr},
		maxRetries: max(opts.MaxRetries, 0),
		factor:     opts.BackoffFactor,
		maxBody:    maxDownload,
		log:        log,
		downloads:  make(map[string]string),
	}, nil
}

//
// ==== WIRE TYPES ====
//

type scanJSON struct {
	ScanID   string `json:"scan_id"`
	TargetID string `json:"target_id"`
	Target   struct {
		Address     string `json:"address"`
		Description string `json:"description"`
	} `json:"target"`
	CurrentSession struct {
		Status         string                `json:"status"`
		StartDate      string                `json:"start_date"`
		EndDate        string                `json:"end_date"`
		SeverityCounts domain.SeverityCounts `json:"severity_counts"`
	} `json:"current_session"`
}

type scanPage struct {
	Scans      []scanJSON `json:"scans"`
	Pagination struct {
		NextCursor any `json:"next_cursor"`
	} `json:"pagination"`
}

type reportJSON struct {
	ReportID string `json:"report_id"`
	Status   string `json:"status"`
	Download any    `json:"download"`
	URL      string `json:"download_url"`
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

//
// ==== GATEWAY ====
//

// ListCompletedScans pages through /scans and keeps completed scans that
// carry both a scan id and a target id, in service order.
func (c *Client) ListCompletedScans(ctx context.Context) ([]domain.Scan, error) {
	var (
		out    []domain.Scan
		cursor string
		seen   = map[string]bool{}
	)
	for {
		q := url.Values{"l": {strconv.Itoa(pageSize)}}
		if cursor != "" {
			q.Set("c", cursor)
		}
		var page scanPage
		if _, err := c.doJSON(ctx, "list scans", http.MethodGet, "/scans?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, s := range page.Scans {
			if scan, ok := toScan(s); ok {
				out = append(out, scan)
			}
		}
		next := cursorString(page.Pagination.NextCursor)
		if next == "" || len(page.Scans) == 0 || seen[next] {
			break
		}
		seen[next] = true
		cursor = next
	}
	c.log.Debug("listed completed scans", zap.Int("count", len(out)))
	return out, nil
}

func (c *Client) RequestReport(ctx context.Context, req domain.ReportRequest) (domain.ReportHandle, error) {
	payload := map[string]any{
		"template_id": req.TemplateID,
		"source": map[string]any{
			"list_type": "scans",
			"id_list":   []string{string(req.ScanID)},
		},
	}
	var rep reportJSON
	hdr, err := c.doJSON(ctx, "request report", http.MethodPost, "/reports", payload, &rep)
	if err != nil {
		return domain.ReportHandle{}, err
	}
	id := rep.ReportID
	if id == "" {
		if loc := hdr.Get("Location"); loc != "" {
			id = path.Base(strings.TrimRight(loc, "/"))
		}
	}
	if id == "" {
		return domain.ReportHandle{}, &domain.GatewayError{Op: "request report", Message: "response carried no report id"}
	}
	return domain.ReportHandle{ReportID: id, ScanID: req.ScanID}, nil
}

func (c *Client) CheckReportReady(ctx context.Context, h domain.ReportHandle) (bool, error) {
	var rep reportJSON
	if _, err := c.doJSON(ctx, "report status", http.MethodGet, "/reports/"+url.PathEscape(h.ReportID), nil, &rep); err != nil {
		return false, err
	}
	switch strings.ToLower(rep.Status) {
	case "completed":
		if u := downloadLocation(rep); u != "" {
			c.mu.Lock()
			c.downloads[h.ReportID] = u
			c.mu.Unlock()
		}
		return true, nil
	case "failed", "cancelled", "canceled":
		return false, fmt.Errorf("report %s is %s: %w", h.ReportID, rep.Status, domain.ErrReportFailed)
	default:
		return false, nil
	}
}

func (c *Client) DownloadReport(ctx context.Context, h domain.ReportHandle) (domain.ReportArtifact, error) {
	c.mu.Lock()
	loc, ok := c.downloads[h.ReportID]
	c.mu.Unlock()
	if !ok {
		loc = "reports/download/" + url.PathEscape(h.ReportID)
	}
	target := c.downloadURL(loc)

	resp, err := c.do(ctx, "download report", http.MethodGet, target, nil)
	if err != nil {
		return domain.ReportArtifact{}, err
	}
	if len(resp.body) == 0 {
		return domain.ReportArtifact{}, &domain.GatewayError{Op: "download report", Message: "empty report body"}
	}

	c.mu.Lock()
	delete(c.downloads, h.ReportID)
	c.mu.Unlock()

	ct := resp.header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return domain.ReportArtifact{
		Filename:    attachmentName(resp.header.Get("Content-Disposition"), target, h.ReportID),
		ContentType: ct,
		Content:     resp.body,
		Handle:      h,
	}, nil
}

// DeleteReports removes generated reports from the service.
func (c *Client) DeleteReports(ctx context.Context, hs []domain.ReportHandle) error {
	if len(hs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(hs))
	for _, h := range hs {
		ids = append(ids, h.ReportID)
	}
	_, err := c.doJSON(ctx, "delete reports", http.MethodPost, "/reports/delete", map[string]any{"report_id_list": ids}, nil)
	return err
}

//
// ==== TRANSPORT ====
//

type response struct {
	header http.Header
	body   []byte
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, in, out any) (http.Header, error) {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, &domain.GatewayError{Op: op, Message: "encode request", Err: err}
		}
		body = b
	}
	resp, err := c.do(ctx, op, method, c.base+"/"+strings.TrimLeft(endpoint, "/"), body)
	if err != nil {
		return nil, err
	}
	if out != nil && len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return nil, &domain.GatewayError{Op: op, Message: "decode response", Err: err}
		}
	}
	return resp.header, nil
}

// do sends one request with transport retries on network errors and on
// 408, 429 and 5xx responses.
func (c *Client) do(ctx context.Context, op, method, target string, body []byte) (*response, error) {
	var out *response
	attempt := 0
	operation := func() error {
		attempt++
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("X-Auth", c.apiKey)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > c.maxBody {
			// a truncated report must never be delivered
			return backoff.Permanent(fmt.Errorf("response exceeds %d bytes", c.maxBody))
		}
		if resp.StatusCode >= 400 {
			serr := &statusError{Code: resp.StatusCode, Body: errorMessage(data)}
			if retryable(resp.StatusCode) {
				return serr
			}
			return backoff.Permanent(serr)
		}
		out = &response{header: resp.Header, body: data}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warn("acunetix request failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxRetries+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, c.backOff(ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.log.Error("acunetix request failed", zap.String("op", op), zap.Int("attempts", attempt), zap.Error(err))
		return nil, &domain.GatewayError{Op: op, Message: fmt.Sprintf("failed after %d attempt(s)", attempt), Err: err}
	}
	return out, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Duration(c.factor * float64(time.Second))
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)
}

func retryable(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// downloadURL resolves a download location against the API root, dropping a
// duplicated /api/v1 prefix.
func (c *Client) downloadURL(loc string) string {
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return loc
	}
	base := strings.TrimSuffix(c.base, apiPrefix)
	suffix := "/" + strings.TrimLeft(loc, "/")
	suffix = strings.TrimPrefix(suffix, apiPrefix)
	return base + apiPrefix + "/" + strings.TrimLeft(suffix, "/")
}

//
// ==== HELPERS ====
//

func toScan(s scanJSON) (domain.Scan, bool) {
	if s.ScanID == "" || s.TargetID == "" {
		return domain.Scan{}, false
	}
	if domain.Status(strings.ToLower(s.CurrentSession.Status)) != domain.StatusCompleted {
		return domain.Scan{}, false
	}
	target := s.Target.Description
	if strings.TrimSpace(target) == "" {
		target = s.Target.Address
	}
	completed := parseTime(s.CurrentSession.EndDate)
	if completed.IsZero() {
		completed = parseTime(s.CurrentSession.StartDate)
	}
	return domain.Scan{
		ID:          domain.ScanID(s.ScanID),
		TargetID:    s.TargetID,
		Target:      target,
		CompletedAt: completed,
		Status:      domain.StatusCompleted,
		Counts:      s.CurrentSession.SeverityCounts,
	}, true
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func cursorString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}

// downloadLocation picks the first usable download reference from a status
// response.
func downloadLocation(rep reportJSON) string {
	switch d := rep.Download.(type) {
	case string:
		if d != "" {
			return d
		}
	case []any:
		for _, item := range d {
			switch v := item.(type) {
			case string:
				if v != "" {
					return v
				}
			case map[string]any:
				if u, ok := v["url"].(string); ok && u != "" {
					return u
				}
			}
		}
	}
	return rep.URL
}

func attachmentName(disposition, target, reportID string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}
	if u, err := url.Parse(target); err == nil {
		if base := path.Base(u.Path); path.Ext(base) != "" {
			return base
		}
	}
	return reportID + ".html"
}

func errorMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil && m.Message != "" {
		return m.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
