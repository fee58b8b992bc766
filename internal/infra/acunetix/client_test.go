package acunetix

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/api/v1", APIKey: "secret", VerifySSL: true, Timeout: 5 * time.Second, MaxRetries: 2}, nil)
	require.NoError(t, err)
	return c
}

func TestListCompletedScans_PagesAndFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/scans", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Auth"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		switch r.URL.Query().Get("c") {
		case "":
			_, _ = w.Write([]byte(`{"scans":[
				{"scan_id":"s1","target_id":"t1","target":{"address":"https://a.example","description":"Shop"},
				 "current_session":{"status":"completed","start_date":"2024-03-09T14:05:06.123+00:00","severity_counts":{"critical":1,"high":2,"medium":0,"low":3,"info":4}}},
				{"scan_id":"s2","target_id":"t2","current_session":{"status":"processing"}},
				{"scan_id":"","target_id":"t3","current_session":{"status":"completed"}}
			],"pagination":{"next_cursor":"100"}}`))
		case "100":
			_, _ = w.Write([]byte(`{"scans":[
				{"scan_id":"s4","target_id":"t4","target":{"address":"https://b.example"},"current_session":{"status":"completed"}}
			],"pagination":{"next_cursor":null}}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("c"))
		}
	})
	c := newTestClient(t, mux)

	list, err := c.ListCompletedScans(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, domain.ScanID("s1"), list[0].ID)
	assert.Equal(t, "Shop", list[0].Target)
	assert.Equal(t, 10, list[0].Counts.Total())
	assert.Equal(t, 2024, list[0].CompletedAt.Year())
	assert.Equal(t, "https://b.example", list[1].Target)
}

func TestRequestReport_ReadsLocationHeader(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TemplateID string `json:"template_id"`
			Source     struct {
				ListType string   `json:"list_type"`
				IDList   []string `json:"id_list"`
			} `json:"source"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tpl", body.TemplateID)
		assert.Equal(t, "scans", body.Source.ListType)
		assert.Equal(t, []string{"s1"}, body.Source.IDList)

		w.Header().Set("Location", "/api/v1/reports/rep-9")
		w.WriteHeader(http.StatusCreated)
	}))

	h, err := c.RequestReport(context.Background(), domain.ReportRequest{ScanID: "s1", TemplateID: "tpl"})
	require.NoError(t, err)
	assert.Equal(t, "rep-9", h.ReportID)
	assert.Equal(t, domain.ScanID("s1"), h.ScanID)
}

func TestCheckAndDownload(t *testing.T) {
	var status atomic.Value
	status.Store("processing")
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/reports/r1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"report_id": "r1",
			"status":    status.Load(),
			"download":  []any{map[string]any{"url": "/api/v1/reports/download/r1.html"}},
		})
	})
	mux.HandleFunc("/api/v1/reports/download/r1.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>report</html>"))
	})
	c := newTestClient(t, mux)
	h := domain.ReportHandle{ReportID: "r1", ScanID: "s1"}

	ready, err := c.CheckReportReady(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, ready)

	status.Store("completed")
	ready, err = c.CheckReportReady(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, ready)

	art, err := c.DownloadReport(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "r1.html", art.Filename)
	assert.Equal(t, "text/html", art.ContentType)
	assert.Equal(t, []byte("<html>report</html>"), art.Content)
}

func TestDownloadReport_OversizedBodyFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/reports/r1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"completed","download":["/api/v1/reports/download/r1.pdf"]}`))
	})
	mux.HandleFunc("/api/v1/reports/download/r1.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	})
	c := newTestClient(t, mux)
	c.maxBody = 32
	h := domain.ReportHandle{ReportID: "r1", ScanID: "s1"}

	ready, err := c.CheckReportReady(context.Background(), h)
	require.NoError(t, err)
	require.True(t, ready)

	art, err := c.DownloadReport(context.Background(), h)
	var gerr *domain.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, err.Error(), "exceeds 32 bytes")
	assert.Empty(t, art.Content)

	c.maxBody = 64
	art, err = c.DownloadReport(context.Background(), h)
	require.NoError(t, err)
	assert.Len(t, art.Content, 64)
}

func TestCheckReportReady_FailedIsTerminal(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed"}`))
	}))

	_, err := c.CheckReportReady(context.Background(), domain.ReportHandle{ReportID: "r1"})
	assert.ErrorIs(t, err, domain.ErrReportFailed)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"scans":[]}`))
	}))

	_, err := c.ListCompletedScans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_GivesUpAndWrapsGatewayError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.ListCompletedScans(context.Background())
	var gerr *domain.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "list scans", gerr.Op)
	assert.Equal(t, int32(3), calls.Load(), "first try plus two retries")
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad api key"}`))
	}))

	_, err := c.ListCompletedScans(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad api key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeleteReports(t *testing.T) {
	var got []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reports/delete", r.URL.Path)
		var body struct {
			IDs []string `json:"report_id_list"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body.IDs
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.DeleteReports(context.Background(), []domain.ReportHandle{{ReportID: "a"}, {ReportID: "b"}}))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestDownloadURL(t *testing.T) {
	c, err := New(Options{BaseURL: "https://scanner:3443/api/v1/"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://scanner:3443/api/v1/reports/download/x", c.downloadURL("/api/v1/reports/download/x"))
	assert.Equal(t, "https://scanner:3443/api/v1/reports/download/x", c.downloadURL("reports/download/x"))
	assert.Equal(t, "https://cdn/x.pdf", c.downloadURL("https://cdn/x.pdf"))
}
