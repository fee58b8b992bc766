package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ClientFromContext(r.Context())))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"ops": "k1"})(okHandler())

	for _, tc := range []struct {
		name, path, auth string
		want             int
	}{
		{"health is open", "/health", "", http.StatusOK},
		{"missing header", "/v1/registry", "", http.StatusUnauthorized},
		{"wrong key", "/v1/registry", "Bearer nope", http.StatusUnauthorized},
		{"bearer key", "/v1/registry", "Bearer k1", http.StatusOK},
		{"bare key", "/v1/registry", "k1", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := rl.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/cycles", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	ok := HealthHandler(map[string]HealthChecker{"registry": checkerFunc(func(context.Context) error { return nil })})
	rec := httptest.NewRecorder()
	ok(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	bad := HealthHandler(map[string]HealthChecker{"registry": checkerFunc(func(context.Context) error { return errors.New("disk gone") })})
	rec = httptest.NewRecorder()
	bad(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk gone")
}

func TestMetricsCycle(t *testing.T) {
	m := NewMetrics()
	m.ObserveCycle(3, 1, nil)
	m.ObserveCycle(0, 0, errors.New("list failed"))

	assert.Equal(t, uint64(1), m.CyclesFailed.Load())
	assert.Equal(t, uint64(2), m.CyclesTotal.Load())
	assert.Equal(t, uint64(3), m.ScansProcessed.Load())
	assert.Equal(t, uint64(1), m.ScansFailed.Load())
}

func TestValidateScanID(t *testing.T) {
	assert.NoError(t, ValidateScanID("5f1c0c8e-3b7a-4c55-9d11-0a1b2c3d4e5f"))
	assert.Error(t, ValidateScanID(""))
	assert.Error(t, ValidateScanID("../etc/passwd"))
	assert.Equal(t, "ab", SanitizeString(" a\x00b\x07 "))
}
