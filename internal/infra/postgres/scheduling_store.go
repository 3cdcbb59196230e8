package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/timely-go/internal/domain"
)

// SchedulingStore persists meetings, meeting types and availability.
type SchedulingStore struct {
	pool *pgxpool.Pool
}

// NewSchedulingStore creates a scheduling store backed by pool.
func NewSchedulingStore(pool *pgxpool.Pool) *SchedulingStore {
	return &SchedulingStore{pool: pool}
}

func (s *SchedulingStore) ListMeetings(ctx context.Context, userID string) ([]domain.Meeting, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListMeetings")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id, title, date, duration, platform, participant_email, meeting_type
		FROM meetings WHERE user_id = $1 ORDER BY date ASC`, userID)
	if err != nil {
		return nil, storeError("list_meetings", err)
	}

	meetings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Meeting, error) {
		var m domain.Meeting
		var platform string
		err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Date, &m.Duration, &platform, &m.ParticipantEmail, &m.MeetingType)
		m.Platform = domain.MeetingPlatform(platform)
		m.Date = m.Date.UTC()
		return m, err
	})
	if err != nil {
		return nil, storeError("list_meetings", err)
	}
	return meetings, nil
}

func (s *SchedulingStore) CreateMeeting(ctx context.Context, m *domain.Meeting) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateMeeting")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", m.UserID))

	_, err := s.pool.Exec(ctx, `
		INSERT INTO meetings (id, user_id, title, date, duration, platform, participant_email, meeting_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.Title, m.Date, m.Duration, string(m.Platform), m.ParticipantEmail, m.MeetingType)
	if err != nil {
		return storeError("create_meeting", err)
	}
	return nil
}

func (s *SchedulingStore) ListMeetingTypes(ctx context.Context, userID string) ([]domain.MeetingType, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListMeetingTypes")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id, name, duration, platform, description
		FROM meeting_types WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, storeError("list_meeting_types", err)
	}

	types, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MeetingType, error) {
		var mt domain.MeetingType
		var platform string
		err := row.Scan(&mt.ID, &mt.UserID, &mt.Name, &mt.Duration, &platform, &mt.Description)
		mt.Platform = domain.MeetingPlatform(platform)
		return mt, err
	})
	if err != nil {
		return nil, storeError("list_meeting_types", err)
	}
	return types, nil
}

func (s *SchedulingStore) CreateMeetingType(ctx context.Context, mt *domain.MeetingType) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateMeetingType")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", mt.UserID))

	_, err := s.pool.Exec(ctx, `
		INSERT INTO meeting_types (id, user_id, name, duration, platform, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		mt.ID, mt.UserID, mt.Name, mt.Duration, string(mt.Platform), mt.Description)
	if err != nil {
		return storeError("create_meeting_type", err)
	}
	return nil
}

func (s *SchedulingStore) GetAvailability(ctx context.Context, userID string) (*domain.Availability, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var (
		days []int32
		a    domain.Availability
	)
	err := s.pool.QueryRow(ctx, `
		SELECT work_days, start_time, end_time, timezone
		FROM availability WHERE user_id = $1`, userID).
		Scan(&days, &a.StartTime, &a.EndTime, &a.Timezone)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get_availability", err)
	}
	a.WorkDays = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		a.WorkDays = append(a.WorkDays, time.Weekday(d))
	}
	return &a, nil
}

func (s *SchedulingStore) PutAvailability(ctx context.Context, userID string, a *domain.Availability) error {
	ctx, span := tracer.Start(ctx, "Postgres.PutAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	days := make([]int32, 0, len(a.WorkDays))
	for _, d := range a.WorkDays {
		days = append(days, int32(d))
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO availability (user_id, work_days, start_time, end_time, timezone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			work_days = EXCLUDED.work_days,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			timezone = EXCLUDED.timezone`,
		userID, days, a.StartTime, a.EndTime, a.Timezone)
	if err != nil {
		return storeError("put_availability", err)
	}
	return nil
}
