package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/observability"
	"github.com/boddenberg/timely-go/internal/port"
)

var workspaceTracer = otel.Tracer("service/workspace")

const maxUpcoming = 5

// Workspace serves the Home screen data of a signed-in user: meetings,
// meeting types, contacts, availability and monthly stats.
type Workspace struct {
	store    port.SchedulingStore
	types    port.Cache[[]domain.MeetingType]
	seeding  singleflight.Group
	timezone string
	now      func() time.Time
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewWorkspace creates a workspace. types caches meeting-type lists per user;
// timezone is used for availability defaults.
func NewWorkspace(store port.SchedulingStore, types port.Cache[[]domain.MeetingType], timezone string, metrics *observability.Metrics, logger *zap.Logger) *Workspace {
	if timezone == "" {
		timezone = "UTC"
	}
	return &Workspace{
		store:    store,
		types:    types,
		timezone: timezone,
		now:      time.Now,
		metrics:  metrics,
		logger:   logger,
	}
}

// ============================================================
// Meetings
// ============================================================

// ListMeetings returns the user's meetings ordered by date.
func (w *Workspace) ListMeetings(ctx context.Context, userID string) ([]domain.Meeting, error) {
	meetings, err := w.store.ListMeetings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	sort.SliceStable(meetings, func(i, j int) bool { return meetings[i].Date.Before(meetings[j].Date) })
	return meetings, nil
}

// AddMeeting validates and stores a meeting.
func (w *Workspace) AddMeeting(ctx context.Context, userID string, req domain.MeetingRequest) (*domain.Meeting, error) {
	ctx, span := workspaceTracer.Start(ctx, "Workspace.AddMeeting")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	m := &domain.Meeting{
		ID:               uuid.NewString(),
		UserID:           userID,
		Title:            strings.TrimSpace(req.Title),
		Date:             req.Date.UTC(),
		Duration:         req.Duration,
		Platform:         req.Platform,
		ParticipantEmail: strings.ToLower(strings.TrimSpace(req.ParticipantEmail)),
		MeetingType:      req.MeetingType,
	}
	if err := w.store.CreateMeeting(ctx, m); err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	w.logger.Info("meeting added", zap.String("user_id", userID), zap.String("meeting_id", m.ID))
	return m, nil
}

// ============================================================
// Meeting types
// ============================================================

// ListMeetingTypes returns the user's meeting types. Users without any are
// seeded with the default set first.
func (w *Workspace) ListMeetingTypes(ctx context.Context, userID string) ([]domain.MeetingType, error) {
	if cached, ok := w.types.Get(userID); ok {
		w.metrics.IncrCacheHit("meeting_types")
		return cached, nil
	}
	w.metrics.IncrCacheMiss("meeting_types")

	v, err, _ := w.seeding.Do(userID, func() (any, error) {
		types, err := w.store.ListMeetingTypes(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list meeting types: %w", err)
		}
		if len(types) == 0 {
			types, err = w.seedMeetingTypes(ctx, userID)
			if err != nil {
				return nil, err
			}
		}
		w.types.Set(userID, types)
		return types, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.MeetingType), nil
}

func (w *Workspace) seedMeetingTypes(ctx context.Context, userID string) ([]domain.MeetingType, error) {
	defaults := domain.DefaultMeetingTypes()
	out := make([]domain.MeetingType, 0, len(defaults))
	for _, req := range defaults {
		mt := newMeetingType(userID, req)
		if err := w.store.CreateMeetingType(ctx, &mt); err != nil {
			return nil, fmt.Errorf("seed meeting types: %w", err)
		}
		out = append(out, mt)
	}
	w.logger.Info("seeded default meeting types", zap.String("user_id", userID))
	return out, nil
}

// AddMeetingType validates and stores a meeting type.
func (w *Workspace) AddMeetingType(ctx context.Context, userID string, req domain.MeetingTypeRequest) (*domain.MeetingType, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// Seed first so the defaults are not skipped for a user whose first
	// action is adding a type.
	if _, err := w.ListMeetingTypes(ctx, userID); err != nil {
		return nil, err
	}
	mt := newMeetingType(userID, req)
	if err := w.store.CreateMeetingType(ctx, &mt); err != nil {
		return nil, fmt.Errorf("create meeting type: %w", err)
	}
	w.types.Delete(userID)
	return &mt, nil
}

func newMeetingType(userID string, req domain.MeetingTypeRequest) domain.MeetingType {
	return domain.MeetingType{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Duration:    req.Duration,
		Platform:    req.Platform,
		Description: strings.TrimSpace(req.Description),
	}
}

// ============================================================
// Contacts
// ============================================================

// ListContacts derives the contact roster from the user's meetings, most
// frequent first.
func (w *Workspace) ListContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	meetings, err := w.store.ListMeetings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contactsFrom(meetings), nil
}

func contactsFrom(meetings []domain.Meeting) []domain.Contact {
	index := make(map[string]int)
	var contacts []domain.Contact
	for _, m := range meetings {
		email := strings.ToLower(m.ParticipantEmail)
		if i, ok := index[email]; ok {
			contacts[i].MeetingCount++
			continue
		}
		index[email] = len(contacts)
		contacts = append(contacts, domain.Contact{
			Name:         domain.ContactNameFromEmail(email),
			Email:        email,
			MeetingCount: 1,
		})
	}
	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].MeetingCount > contacts[j].MeetingCount })
	return contacts
}

// ============================================================
// Availability
// ============================================================

// GetAvailability returns the stored window or the default one.
func (w *Workspace) GetAvailability(ctx context.Context, userID string) (domain.Availability, error) {
	a, err := w.store.GetAvailability(ctx, userID)
	if err != nil {
		return domain.Availability{}, fmt.Errorf("get availability: %w", err)
	}
	if a == nil {
		return domain.DefaultAvailability(w.timezone), nil
	}
	return *a, nil
}

// UpdateAvailability validates and replaces the user's window.
func (w *Workspace) UpdateAvailability(ctx context.Context, userID string, a domain.Availability) (domain.Availability, error) {
	if err := a.Validate(); err != nil {
		return domain.Availability{}, err
	}
	sort.Slice(a.WorkDays, func(i, j int) bool { return a.WorkDays[i] < a.WorkDays[j] })
	if err := w.store.PutAvailability(ctx, userID, &a); err != nil {
		return domain.Availability{}, fmt.Errorf("put availability: %w", err)
	}
	return a, nil
}

// ============================================================
// Stats and dashboard
// ============================================================

// MonthlyStats summarizes the calendar month of now.
func (w *Workspace) MonthlyStats(ctx context.Context, userID string, now time.Time) (domain.MonthlyStats, error) {
	meetings, err := w.store.ListMeetings(ctx, userID)
	if err != nil {
		return domain.MonthlyStats{}, fmt.Errorf("monthly stats: %w", err)
	}
	return domain.ComputeMonthlyStats(meetings, len(contactsFrom(meetings)), now), nil
}

// Dashboard loads everything the Home screen shows, concurrently.
func (w *Workspace) Dashboard(ctx context.Context, profile *domain.UserProfile) (*domain.Dashboard, error) {
	ctx, span := workspaceTracer.Start(ctx, "Workspace.Dashboard")
	defer span.End()

	var (
		meetings     []domain.Meeting
		types        []domain.MeetingType
		availability domain.Availability
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := w.ListMeetings(gCtx, profile.ID)
		meetings = m
		return err
	})
	g.Go(func() error {
		t, err := w.ListMeetingTypes(gCtx, profile.ID)
		types = t
		return err
	})
	g.Go(func() error {
		a, err := w.GetAvailability(gCtx, profile.ID)
		availability = a
		return err
	})
	if err := g.Wait(); err != nil {
		w.logger.Error("dashboard load failed", zap.String("user_id", profile.ID), zap.Error(err))
		return nil, err
	}

	now := w.now()
	contacts := contactsFrom(meetings)
	return &domain.Dashboard{
		Greeting:     fmt.Sprintf("Welcome, %s!", profile.FirstName),
		Profile:      profile,
		Upcoming:     upcoming(meetings, now),
		MeetingTypes: types,
		Contacts:     contacts,
		Availability: availability,
		Stats:        domain.ComputeMonthlyStats(meetings, len(contacts), now),
	}, nil
}

// upcoming returns the next meetings from now, in date order.
func upcoming(sorted []domain.Meeting, now time.Time) []domain.Meeting {
	out := make([]domain.Meeting, 0, maxUpcoming)
	for _, m := range sorted {
		if m.Date.Before(now) {
			continue
		}
		out = append(out, m)
		if len(out) == maxUpcoming {
			break
		}
	}
	return out
}
