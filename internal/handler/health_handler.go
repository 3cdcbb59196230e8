package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/observability"
	"github.com/boddenberg/timely-go/internal/port"

	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// Dependency is a backing service reported by /healthz and /readyz.
type Dependency struct {
	Name   string
	Pinger port.Pinger
}

func checkDependencies(ctx context.Context, deps []Dependency) []domain.ServiceHealth {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "timely-api", Status: "healthy", LastChecked: now},
	}

	for _, d := range deps {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		start := time.Now()
		err := d.Pinger.Ping(pingCtx)
		cancel()

		h := domain.ServiceHealth{
			Name:        d.Name,
			Status:      "healthy",
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		}
		if err != nil {
			h.Status = "degraded"
			h.Error = err.Error()
		}
		services = append(services, h)
	}
	return services
}

func overallStatus(services []domain.ServiceHealth) string {
	status := "healthy"
	for _, s := range services {
		if s.Status == "unhealthy" {
			return "unhealthy"
		}
		if s.Status == "degraded" {
			status = "degraded"
		}
	}
	return status
}

// healthzHandler reports liveness plus the state of each dependency. It
// always answers 200.
func healthzHandler(deps []Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := checkDependencies(r.Context(), deps)
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus(services),
			Services: services,
		})
	}
}

// readyzHandler answers 503 while any dependency fails its ping.
func readyzHandler(deps []Dependency, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := checkDependencies(r.Context(), deps)
		status := overallStatus(services)
		if status != "healthy" {
			logger.Warn("readiness check failed", zap.Any("services", services))
			writeJSON(w, http.StatusServiceUnavailable, domain.HealthStatus{Status: status, Services: services})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func sessionMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSessionSnapshot())
	}
}
