package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appscans "github.com/bryanwahyu/acunetix-report-sender/internal/application/scans"
	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	domain "github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
	"github.com/bryanwahyu/acunetix-report-sender/internal/middleware"
)

// CycleService is what the HTTP surface needs from the orchestrator.
type CycleService interface {
	TryRunCycle(ctx context.Context, since time.Time) (appscans.ProcessingSummary, error)
	Records() []domreg.ProcessedRecord
	Lookup(id domain.ScanID) (domreg.ProcessedRecord, bool)
}

type Deps struct {
	Cycles CycleService
	// Since returns the checkpoint window start for a cycle; nil means none.
	Since          func() time.Time
	Metrics        *middleware.Metrics
	Health         map[string]middleware.HealthChecker
	APIKeys        map[string]string
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	Log            *zap.Logger
}

type Router struct {
	deps Deps
	log  *zap.Logger
}

var errNotFound = errors.New("not found")

type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }

func NewRouter(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = middleware.NewMetrics()
	}
	r := &Router{deps: deps, log: deps.Log}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID, chimw.Recoverer)
	mux.Use(middleware.Logging(deps.Log))
	mux.Use(deps.Metrics.Middleware)
	if len(deps.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", middleware.HealthHandler(deps.Health))
	mux.Get("/metrics", deps.Metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		if len(deps.APIKeys) > 0 {
			rt.Use(middleware.APIKeyAuth(deps.APIKeys))
		}
		if deps.RateLimit > 0 {
			rt.Use(middleware.NewRateLimiter(deps.RateLimit, deps.RateBurst).Middleware)
		}
		rt.Post("/cycles", r.wrap(r.handleRunCycle))
		rt.Get("/registry", r.wrap(r.handleRegistry))
		rt.Get("/registry/{id}", r.wrap(r.handleRecord))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		var gerr *domain.GatewayError
		switch {
		case errors.Is(err, errNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.As(err, &br):
			http.Error(w, br.Error(), http.StatusBadRequest)
		case errors.Is(err, appscans.ErrCycleRunning):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &gerr):
			http.Error(w, gerr.Error(), http.StatusBadGateway)
		default:
			r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /v1/cycles
// Runs one cycle synchronously and returns its summary.
func (r *Router) handleRunCycle(w http.ResponseWriter, req *http.Request) error {
	var since time.Time
	if r.deps.Since != nil {
		since = r.deps.Since()
	}

	// a client hanging up must not abort a cycle mid-delivery
	sum, err := r.deps.Cycles.TryRunCycle(context.WithoutCancel(req.Context()), since)
	if errors.Is(err, appscans.ErrCycleRunning) {
		return err
	}
	r.deps.Metrics.ObserveCycle(sum.Processed, sum.Failed, err)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sum)
}

// GET /v1/registry
func (r *Router) handleRegistry(w http.ResponseWriter, _ *http.Request) error {
	records := r.deps.Cycles.Records()
	return writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

// GET /v1/registry/{id}
func (r *Router) handleRecord(w http.ResponseWriter, req *http.Request) error {
	id := middleware.SanitizeString(chi.URLParam(req, "id"))
	if err := middleware.ValidateScanID(id); err != nil {
		return badRequest{err}
	}
	rec, ok := r.deps.Cycles.Lookup(domain.ScanID(id))
	if !ok {
		return errNotFound
	}
	return writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
