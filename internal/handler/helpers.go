package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeCodedError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &domain.ErrValidation{Field: "body", Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// authStatus maps credential failures onto HTTP statuses.
var authStatus = map[domain.AuthErrorKind]int{
	domain.AuthInvalidCredentials: http.StatusUnauthorized,
	domain.AuthEmailInUse:         http.StatusConflict,
	domain.AuthWeakPassword:       http.StatusUnprocessableEntity,
	domain.AuthNetwork:            http.StatusBadGateway,
	domain.AuthRateLimited:        http.StatusTooManyRequests,
	domain.AuthUserDisabled:       http.StatusForbidden,
	domain.AuthTimeout:            http.StatusGatewayTimeout,
	domain.AuthUnknown:            http.StatusBadGateway,
}

// storeStatus maps store failures onto HTTP statuses.
var storeStatus = map[domain.StoreErrorKind]int{
	domain.StoreNetwork:          http.StatusServiceUnavailable,
	domain.StorePermissionDenied: http.StatusForbidden,
	domain.StoreDecodeFailure:    http.StatusInternalServerError,
	domain.StoreUnknown:          http.StatusBadGateway,
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var wrongState *domain.ErrWrongState
	var authErr *domain.AuthError
	var storeErr *domain.StoreError

	switch {
	case errors.As(err, &authErr):
		logger.Debug("auth error", zap.String("kind", string(authErr.Kind)), zap.Error(err))
		status, ok := authStatus[authErr.Kind]
		if !ok {
			status = http.StatusBadGateway
		}
		writeCodedError(w, status, string(authErr.Kind), authErr.Message())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &storeErr):
		logger.Error("store error", zap.String("kind", string(storeErr.Kind)), zap.Error(err))
		status, ok := storeStatus[storeErr.Kind]
		if !ok {
			status = http.StatusBadGateway
		}
		writeCodedError(w, status, string(storeErr.Kind), storeErr.Message())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusBadRequest, "validation", validation.Message)
	case errors.As(err, &wrongState):
		logger.Debug("wrong session state", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusConflict, "wrong_state", err.Error())
	case errors.Is(err, domain.ErrSaveInFlight):
		writeCodedError(w, http.StatusConflict, "save_in_flight", domain.UserMessage(err))
	case errors.Is(err, service.ErrSessionClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
