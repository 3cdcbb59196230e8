package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const deviceSessionKey contextKey = "deviceSession"

// DeviceSessionMiddleware resolves the {sid} URL parameter and injects the
// device session into the request context.
func DeviceSessionMiddleware(sessions *Sessions, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := chi.URLParam(r, "sid")
			ds, err := sessions.Get(sid)
			if err != nil {
				logger.Debug("session: unknown id",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), deviceSessionKey, ds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceSessionFromContext returns the session injected by
// DeviceSessionMiddleware.
func DeviceSessionFromContext(ctx context.Context) *DeviceSession {
	ds, _ := ctx.Value(deviceSessionKey).(*DeviceSession)
	return ds
}
