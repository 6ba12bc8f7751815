package web

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// HealthStatus is the /healthz response body.
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Checks    map[string]CheckStatus   `json:"checks"`
	Uploads   core.UploadLimiterStatus `json:"uploads"`
	Sessions  int                      `json:"sessions"`
}

// CheckStatus is the outcome of one named check.
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const healthCheckTimeout = 2 * time.Second

// AddHealthCheck registers a named dependency check. Registering the same
// name twice replaces the earlier check.
func (s *Server) AddHealthCheck(name string, checker HealthChecker) {
	s.checksMu.Lock()
	defer s.checksMu.Unlock()
	s.checks[name] = checker
}

// handleHealth runs every registered check and reports 503 if any fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.checksMu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthChecker, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.checksMu.RUnlock()
	sort.Strings(names)

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckStatus, len(names)),
		Uploads:   s.service.UploadLimiterStatus(),
		Sessions:  s.service.SessionCount(),
	}

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checks[name].Check(ctx)
		cancel()

		if err != nil {
			health.Status = "unhealthy"
			health.Checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		health.Checks[name] = CheckStatus{Status: "healthy"}
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
