package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 4. Home (requires the Home state)
// GET      /v1/sessions/{sid}/home
// GET/POST /v1/sessions/{sid}/meetings
// GET/POST /v1/sessions/{sid}/meeting-types
// GET      /v1/sessions/{sid}/contacts
// GET/PUT  /v1/sessions/{sid}/availability
// GET      /v1/sessions/{sid}/stats
// ============================================================

// homeProfile returns the signed-in profile or writes 409 when the session is
// not in Home.
func homeProfile(w http.ResponseWriter, r *http.Request, operation string, logger *zap.Logger) (*domain.UserProfile, bool) {
	ds := DeviceSessionFromContext(r.Context())
	s, err := ds.Machine.RequireHome(operation)
	if err != nil {
		handleServiceError(w, err, logger)
		return nil, false
	}
	return s.Profile, true
}

func dashboardHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sessions/{sid}/home")
		defer span.End()

		profile, ok := homeProfile(w, r, "home", logger)
		if !ok {
			return
		}
		d, err := ws.Dashboard(ctx, profile)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func listMeetingsHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := homeProfile(w, r, "meetings", logger)
		if !ok {
			return
		}
		meetings, err := ws.ListMeetings(r.Context(), profile.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Meeting]{Data: meetings, Total: len(meetings)})
	}
}

func addMeetingHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sid}/meetings")
		defer span.End()

		profile, ok := homeProfile(w, r, "meetings", logger)
		if !ok {
			return
		}
		var req domain.MeetingRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		m, err := ws.AddMeeting(ctx, profile.ID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func listMeetingTypesHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := homeProfile(w, r, "meeting-types", logger)
		if !ok {
			return
		}
		types, err := ws.ListMeetingTypes(r.Context(), profile.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.MeetingType]{Data: types, Total: len(types)})
	}
}

func addMeetingTypeHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := homeProfile(w, r, "meeting-types", logger)
		if !ok {
			return
		}
		var req domain.MeetingTypeRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		mt, err := ws.AddMeetingType(r.Context(), profile.ID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, mt)
	}
}

func contactsHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := homeProfile(w, r, "contacts", logger)
		if !ok {
			return
		}
		contacts, err := ws.ListContacts(r.Context(), profile.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Contact]{Data: contacts, Total: len(contacts)})
	}
}

func getAvailabilityHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := homeProfile(w, r, "availability", logger)
		if !ok {
			return
		}
		a, err := ws.GetAvailability(r.Context(), profile.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func updateAvailabilityHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := homeProfile(w, r, "availability", logger)
		if !ok {
			return
		}
		var req domain.Availability
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		a, err := ws.UpdateAvailability(r.Context(), profile.ID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func statsHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := homeProfile(w, r, "stats", logger)
		if !ok {
			return
		}
		stats, err := ws.MonthlyStats(r.Context(), profile.ID, time.Now())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
