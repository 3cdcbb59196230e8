package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	Error       string `json:"error,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// SessionMetrics is returned by GET /v1/metrics/session.
type SessionMetrics struct {
	ActiveSessions       float64            `json:"activeSessions"`
	Transitions          map[string]float64 `json:"transitions"`
	StaleResultsDropped  float64            `json:"staleResultsDropped"`
	OnboardingCompleted  float64            `json:"onboardingCompleted"`
	OnboardingSaveErrors float64            `json:"onboardingSaveErrors"`
	AuthFailures         map[string]float64 `json:"authFailures"`
	StoreErrors          float64            `json:"storeErrors"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
