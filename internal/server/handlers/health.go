package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

// CheckHealth calls f.
func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a healthy response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// CheckTimeout bounds each readiness check.
const CheckTimeout = 5 * time.Second

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	version  string
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version, checkers: make(map[string]HealthChecker)}
}

// RegisterChecker adds a named checker.
func (m *HealthManager) RegisterChecker(name string, c HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for k, v := range m.checkers {
		checkers[k] = v
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()

			status := "healthy"
			if err := c.CheckHealth(cctx); err != nil {
				status = "unhealthy"
				if errors.Is(err, context.DeadlineExceeded) {
					status = "timeout"
				}
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// determineOverallStatus is "unhealthy" if any check failed, "degraded" if
// any timed out, else "healthy".
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler runs every check and reports 200 or 503.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)
	if status == "unhealthy" {
		WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "service unhealthy",
			map[string]any{"checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// LivenessHandler reports that the process is serving.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: m.version, Timestamp: time.Now().UTC()})
}

// ReadinessHandler is HealthHandler.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports that configuration loaded and routes are mounted.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.LivenessHandler(w, r)
}

var globalHealthManager *HealthManager

// InitHealthManager installs the process-wide manager.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide manager, or nil.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobal(serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := globalHealthManager
		if m == nil {
			WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "health manager not initialized", nil)
			return
		}
		serve(m, w, r)
	}
}

// Process-wide handlers. They answer 503 until InitHealthManager runs.
var (
	HealthHandler    = withGlobal((*HealthManager).HealthHandler)
	LivenessHandler  = withGlobal((*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobal((*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobal((*HealthManager).StartupHandler)
)
