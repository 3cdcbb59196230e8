package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/service"

	"go.uber.org/zap"
)

// settleTimeout bounds how long a response waits for the session machine to
// leave Loading.
const settleTimeout = 3 * time.Second

const keepAliveInterval = 15 * time.Second

// ============================================================
// 1. Device sessions
// POST /v1/sessions
// GET  /v1/sessions/{sid}
// GET  /v1/sessions/{sid}/events
// POST /v1/sessions/{sid}/reload
// ============================================================

type sessionResponse struct {
	SessionID string              `json:"sessionId"`
	State     domain.SessionState `json:"state"`
}

func openSessionHandler(sessions *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := sessions.Open()
		writeJSON(w, http.StatusCreated, sessionResponse{
			SessionID: ds.ID,
			State:     settle(r.Context(), ds.Machine, service.Settled),
		})
	}
}

func getSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := DeviceSessionFromContext(r.Context())
		writeJSON(w, http.StatusOK, sessionResponse{SessionID: ds.ID, State: ds.Machine.State()})
	}
}

// sessionEventsHandler streams every state as a server-sent event until the
// client disconnects or the session is closed.
func sessionEventsHandler(sessions *Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := DeviceSessionFromContext(r.Context())
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		states, cancel := ds.Machine.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				// Streaming counts as activity for the idle timeout.
				if _, err := sessions.Get(ds.ID); err != nil {
					return
				}
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case s, ok := <-states:
				if !ok {
					fmt.Fprint(w, "event: closed\ndata: {}\n\n")
					flusher.Flush()
					return
				}
				data, err := json.Marshal(s)
				if err != nil {
					logger.Error("sse: encode state", zap.Error(err))
					return
				}
				fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}

func reloadHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/reload")
		defer span.End()

		ds := DeviceSessionFromContext(ctx)
		if err := ds.Machine.Reload(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{
			SessionID: ds.ID,
			State:     settle(ctx, ds.Machine, service.Settled),
		})
	}
}

// ============================================================
// 2. Credentials
// POST /v1/sessions/{sid}/sign-in
// POST /v1/sessions/{sid}/sign-up
// POST /v1/sessions/{sid}/apple
// POST /v1/sessions/{sid}/sign-out
// POST /v1/sessions/{sid}/password-reset
// ============================================================

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type appleRequest struct {
	IDToken string `json:"idToken"`
	Nonce   string `json:"nonce,omitempty"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func signInHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/sign-in")
		defer span.End()

		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ds := DeviceSessionFromContext(ctx)
		if err := authSvc.SignIn(ctx, ds.Provider, req.Email, req.Password); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{SessionID: ds.ID, State: settleSignedIn(ctx, ds)})
	}
}

func signUpHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/sign-up")
		defer span.End()

		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ds := DeviceSessionFromContext(ctx)
		if err := authSvc.SignUp(ctx, ds.Provider, req.Email, req.Password, req.DisplayName); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if ds.Provider.CurrentIdentity() == nil {
			// Email confirmation pending.
			writeJSON(w, http.StatusAccepted, sessionResponse{SessionID: ds.ID, State: ds.Machine.State()})
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{SessionID: ds.ID, State: settleSignedIn(ctx, ds)})
	}
}

func appleSignInHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/apple")
		defer span.End()

		var req appleRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ds := DeviceSessionFromContext(ctx)
		if err := authSvc.SignInWithApple(ctx, ds.Provider, req.IDToken, req.Nonce); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{SessionID: ds.ID, State: settleSignedIn(ctx, ds)})
	}
}

func signOutHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/sign-out")
		defer span.End()

		ds := DeviceSessionFromContext(ctx)
		if err := ds.Machine.SignOut(ctx); err != nil {
			// The local session is cleared regardless.
			logger.Warn("sign-out: provider error", zap.String("session_id", ds.ID), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, sessionResponse{SessionID: ds.ID, State: ds.Machine.State()})
	}
}

func passwordResetHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/password-reset")
		defer span.End()

		var req passwordResetRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ds := DeviceSessionFromContext(ctx)
		if err := authSvc.SendPasswordReset(ctx, ds.Provider, req.Email); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, domain.SuccessResponse{Message: "If the account exists, a reset email is on its way."})
	}
}

// settle waits briefly for a state matching pred and falls back to the
// current state.
func settle(ctx context.Context, m *service.SessionMachine, pred func(domain.SessionState) bool) domain.SessionState {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	s, _ := m.Await(ctx, pred)
	return s
}

// settleSignedIn waits until the machine has resolved the identity that the
// provider just reported.
func settleSignedIn(ctx context.Context, ds *DeviceSession) domain.SessionState {
	id := ds.Provider.CurrentIdentity()
	if id == nil {
		return ds.Machine.State()
	}
	return settle(ctx, ds.Machine, func(s domain.SessionState) bool {
		return service.Settled(s) && s.UserID == id.UserID
	})
}
