package handler

import (
	"net/http"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 3. Onboarding
// GET  /v1/sessions/{sid}/onboarding
// PUT  /v1/sessions/{sid}/onboarding/answer
// POST /v1/sessions/{sid}/onboarding/advance
// POST /v1/sessions/{sid}/onboarding/back
// POST /v1/sessions/{sid}/onboarding/finish
// ============================================================

// onboardingResponse carries the current step while onboarding and the
// resulting session state once it is finished.
type onboardingResponse struct {
	State    domain.SessionState  `json:"state"`
	Question *service.QuestionView `json:"question,omitempty"`
}

type answerRequest struct {
	Value string `json:"value"`
}

func onboardingView(ds *DeviceSession, ob *service.Onboarding) onboardingResponse {
	resp := onboardingResponse{State: ds.Machine.State()}
	if resp.State.Status == domain.StatusOnboarding {
		v := ob.CurrentQuestion()
		resp.Question = &v
	}
	return resp
}

func currentQuestionHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := DeviceSessionFromContext(r.Context())
		ob, err := ds.Machine.Onboarding(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, onboardingView(ds, ob))
	}
}

func setAnswerHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := DeviceSessionFromContext(r.Context())
		var req answerRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ob, err := ds.Machine.Onboarding(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := ob.SetAnswer(req.Value); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, onboardingView(ds, ob))
	}
}

func advanceHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/onboarding/advance")
		defer span.End()

		ds := DeviceSessionFromContext(ctx)
		ob, err := ds.Machine.Onboarding(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := ob.Advance(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, onboardingView(ds, ob))
	}
}

func goBackHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := DeviceSessionFromContext(r.Context())
		ob, err := ds.Machine.Onboarding(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := ob.GoBack(); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, onboardingView(ds, ob))
	}
}

func finishHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/onboarding/finish")
		defer span.End()

		ds := DeviceSessionFromContext(ctx)
		ob, err := ds.Machine.Onboarding(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := ob.Finish(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, onboardingView(ds, ob))
	}
}
