package supabase

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/timely-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// SchedulingStore persists meetings, meeting types and availability in
// PostgREST tables keyed by user_id.
type SchedulingStore struct {
	client *Client
}

// NewSchedulingStore creates a scheduling store on top of c.
func NewSchedulingStore(c *Client) *SchedulingStore {
	return &SchedulingStore{client: c}
}

// supabaseMeeting maps the meetings table columns.
type supabaseMeeting struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Title            string    `json:"title"`
	Date             time.Time `json:"date"`
	Duration         int       `json:"duration"`
	Platform         string    `json:"platform"`
	ParticipantEmail string    `json:"participant_email"`
	MeetingType      string    `json:"meeting_type"`
}

// supabaseMeetingType maps the meeting_types table columns.
type supabaseMeetingType struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Duration    int    `json:"duration"`
	Platform    string `json:"platform"`
	Description string `json:"description"`
}

// supabaseAvailability maps the availability table columns.
type supabaseAvailability struct {
	UserID    string `json:"user_id"`
	WorkDays  []int  `json:"work_days"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Timezone  string `json:"timezone"`
}

func (s *SchedulingStore) ListMeetings(ctx context.Context, userID string) ([]domain.Meeting, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMeetings")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := s.client.do(ctx, request{
		op:     "list_meetings",
		method: http.MethodGet,
		path:   "meetings?" + eq("user_id", userID) + "&order=date.asc",
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[supabaseMeeting]("list_meetings", body)
	if err != nil {
		return nil, err
	}

	meetings := make([]domain.Meeting, 0, len(rows))
	for _, r := range rows {
		meetings = append(meetings, domain.Meeting{
			ID:               r.ID,
			UserID:           r.UserID,
			Title:            r.Title,
			Date:             r.Date.UTC(),
			Duration:         r.Duration,
			Platform:         domain.MeetingPlatform(r.Platform),
			ParticipantEmail: r.ParticipantEmail,
			MeetingType:      r.MeetingType,
		})
	}
	return meetings, nil
}

func (s *SchedulingStore) CreateMeeting(ctx context.Context, m *domain.Meeting) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMeeting")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", m.UserID), attribute.String("meeting.id", m.ID))

	_, err := s.client.do(ctx, request{
		op:     "create_meeting",
		method: http.MethodPost,
		path:   "meetings",
		body: supabaseMeeting{
			ID:               m.ID,
			UserID:           m.UserID,
			Title:            m.Title,
			Date:             m.Date.UTC(),
			Duration:         m.Duration,
			Platform:         string(m.Platform),
			ParticipantEmail: m.ParticipantEmail,
			MeetingType:      m.MeetingType,
		},
		prefer: "return=minimal",
	})
	return err
}

func (s *SchedulingStore) ListMeetingTypes(ctx context.Context, userID string) ([]domain.MeetingType, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMeetingTypes")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := s.client.do(ctx, request{
		op:     "list_meeting_types",
		method: http.MethodGet,
		path:   "meeting_types?" + eq("user_id", userID) + "&order=created_at.asc",
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[supabaseMeetingType]("list_meeting_types", body)
	if err != nil {
		return nil, err
	}

	types := make([]domain.MeetingType, 0, len(rows))
	for _, r := range rows {
		types = append(types, domain.MeetingType{
			ID:          r.ID,
			UserID:      r.UserID,
			Name:        r.Name,
			Duration:    r.Duration,
			Platform:    domain.MeetingPlatform(r.Platform),
			Description: r.Description,
		})
	}
	return types, nil
}

func (s *SchedulingStore) CreateMeetingType(ctx context.Context, mt *domain.MeetingType) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMeetingType")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", mt.UserID))

	_, err := s.client.do(ctx, request{
		op:     "create_meeting_type",
		method: http.MethodPost,
		path:   "meeting_types",
		body: supabaseMeetingType{
			ID:          mt.ID,
			UserID:      mt.UserID,
			Name:        mt.Name,
			Duration:    mt.Duration,
			Platform:    string(mt.Platform),
			Description: mt.Description,
		},
		prefer: "return=minimal",
	})
	return err
}

func (s *SchedulingStore) GetAvailability(ctx context.Context, userID string) (*domain.Availability, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := s.client.do(ctx, request{
		op:     "get_availability",
		method: http.MethodGet,
		path:   "availability?" + eq("user_id", userID) + "&limit=1",
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[supabaseAvailability]("get_availability", body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	r := rows[0]
	days := make([]time.Weekday, 0, len(r.WorkDays))
	for _, d := range r.WorkDays {
		days = append(days, time.Weekday(d))
	}
	return &domain.Availability{
		WorkDays:  days,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Timezone:  r.Timezone,
	}, nil
}

func (s *SchedulingStore) PutAvailability(ctx context.Context, userID string, a *domain.Availability) error {
	ctx, span := tracer.Start(ctx, "Supabase.PutAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	days := make([]int, 0, len(a.WorkDays))
	for _, d := range a.WorkDays {
		days = append(days, int(d))
	}
	_, err := s.client.do(ctx, request{
		op:     "put_availability",
		method: http.MethodPost,
		path:   "availability?on_conflict=user_id",
		body: supabaseAvailability{
			UserID:    userID,
			WorkDays:  days,
			StartTime: a.StartTime,
			EndTime:   a.EndTime,
			Timezone:  a.Timezone,
		},
		prefer: "resolution=merge-duplicates,return=minimal",
	})
	return err
}
