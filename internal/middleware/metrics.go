package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds process counters for HTTP traffic and processing cycles.
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64
	CyclesTotal        atomic.Uint64
	CyclesFailed       atomic.Uint64
	ScansProcessed     atomic.Uint64
	ScansFailed        atomic.Uint64
	StartTime          time.Time

	mu          sync.Mutex
	lastCycleAt time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// ObserveCycle records the outcome of one finished cycle.
func (m *Metrics) ObserveCycle(processed, failed int, err error) {
	m.CyclesTotal.Add(1)
	if err != nil {
		m.CyclesFailed.Add(1)
	}
	m.ScansProcessed.Add(uint64(max(processed, 0)))
	m.ScansFailed.Add(uint64(max(failed, 0)))
	m.mu.Lock()
	m.lastCycleAt = time.Now().UTC()
	m.mu.Unlock()
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	last := m.lastCycleAt
	m.mu.Unlock()
	var lastCycle any
	if !last.IsZero() {
		lastCycle = last
	}

	return map[string]any{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"cycles_total":         m.CyclesTotal.Load(),
		"cycles_failed":        m.CyclesFailed.Load(),
		"scans_processed":      m.ScansProcessed.Load(),
		"scans_failed":         m.ScansFailed.Load(),
		"last_cycle_at":        lastCycle,
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       ms.Alloc,
			"total_alloc_bytes": ms.TotalAlloc,
			"sys_bytes":         ms.Sys,
			"num_gc":            ms.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
