package handler

import (
	"net/http"

	"github.com/boddenberg/timely-go/internal/infra/observability"
	"github.com/boddenberg/timely-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Every client-facing route is scoped to a device session.
func NewRouter(sessions *Sessions, authSvc *service.AuthService, ws *service.Workspace, deps []Dependency, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(deps))
	r.Get("/readyz", readyzHandler(deps, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// GET /v1/metrics/session
		r.Get("/metrics/session", sessionMetricsHandler(metrics))

		// POST /v1/sessions
		r.Post("/sessions", openSessionHandler(sessions))

		r.Route("/sessions/{sid}", func(r chi.Router) {
			r.Use(DeviceSessionMiddleware(sessions, logger))

			// 1. Device session
			r.Get("/", getSessionHandler())
			r.Get("/events", sessionEventsHandler(sessions, logger))
			r.Post("/reload", reloadHandler(logger))

			// 2. Credentials
			r.Post("/sign-in", signInHandler(authSvc, logger))
			r.Post("/sign-up", signUpHandler(authSvc, logger))
			r.Post("/apple", appleSignInHandler(authSvc, logger))
			r.Post("/sign-out", signOutHandler(logger))
			r.Post("/password-reset", passwordResetHandler(authSvc, logger))

			// 3. Onboarding
			r.Get("/onboarding", currentQuestionHandler(logger))
			r.Put("/onboarding/answer", setAnswerHandler(logger))
			r.Post("/onboarding/advance", advanceHandler(logger))
			r.Post("/onboarding/back", goBackHandler(logger))
			r.Post("/onboarding/finish", finishHandler(logger))

			// 4. Home
			r.Get("/home", dashboardHandler(ws, logger))
			r.Get("/meetings", listMeetingsHandler(ws, logger))
			r.Post("/meetings", addMeetingHandler(ws, logger))
			r.Get("/meeting-types", listMeetingTypesHandler(ws, logger))
			r.Post("/meeting-types", addMeetingTypeHandler(ws, logger))
			r.Get("/contacts", contactsHandler(ws, logger))
			r.Get("/availability", getAvailabilityHandler(ws, logger))
			r.Put("/availability", updateAvailabilityHandler(ws, logger))
			r.Get("/stats", statsHandler(ws, logger))
		})
	})

	return r
}
