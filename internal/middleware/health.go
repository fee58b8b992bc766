package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// PingChecker adapts anything with a Ping method, such as the registry stores.
type PingChecker struct {
	Target interface {
		Ping(ctx context.Context) error
	}
}

func (p PingChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Target.Ping(ctx)
}

// HealthStatus represents the health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler creates a health check handler
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]CheckStatus),
		}
		for name, checker := range checkers {
			if err := checker.Check(ctx); err != nil {
				health.Status = "unhealthy"
				health.Checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			} else {
				health.Checks[name] = CheckStatus{Status: "healthy"}
			}
		}

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}
