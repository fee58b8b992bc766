package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domai "github.com/bryanwahyu/acunetix-report-sender/internal/domain/ai"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewClientWithConfig(cfg, "gpt-4o-mini")
}

func TestSummarize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Len(t, req.Messages, 2)
		assert.Equal(t, maxTokens, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "  High risk overall.  "}}},
		})
	})

	got, err := c.Summarize(context.Background(), scans.Scan{Target: "shop"})
	require.NoError(t, err)
	assert.Equal(t, "High risk overall.", got)
}

func TestSummarize_QuotaExceeded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota"}}`))
	})

	_, err := c.Summarize(context.Background(), scans.Scan{Target: "shop"})
	assert.ErrorIs(t, err, domai.ErrQuotaExceeded)
}
