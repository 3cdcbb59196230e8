package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/boddenberg/timely-go/internal/domain"
)

// SchedulingStore keeps meetings, meeting types and availability per user.
type SchedulingStore struct {
	mu           sync.Mutex
	meetings     map[string][]domain.Meeting
	meetingTypes map[string][]domain.MeetingType
	availability map[string]domain.Availability
	err          error
}

// NewSchedulingStore creates an empty store.
func NewSchedulingStore() *SchedulingStore {
	return &SchedulingStore{
		meetings:     make(map[string][]domain.Meeting),
		meetingTypes: make(map[string][]domain.MeetingType),
		availability: make(map[string]domain.Availability),
	}
}

// WithError makes every subsequent call fail with err (nil clears it).
func (s *SchedulingStore) WithError(err error) *SchedulingStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *SchedulingStore) ListMeetings(_ context.Context, userID string) ([]domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	out := slices.Clone(s.meetings[userID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *SchedulingStore) CreateMeeting(_ context.Context, m *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.meetings[m.UserID] = append(s.meetings[m.UserID], *m)
	return nil
}

func (s *SchedulingStore) ListMeetingTypes(_ context.Context, userID string) ([]domain.MeetingType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return slices.Clone(s.meetingTypes[userID]), nil
}

func (s *SchedulingStore) CreateMeetingType(_ context.Context, mt *domain.MeetingType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.meetingTypes[mt.UserID] = append(s.meetingTypes[mt.UserID], *mt)
	return nil
}

func (s *SchedulingStore) GetAvailability(_ context.Context, userID string) (*domain.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.availability[userID]
	if !ok {
		return nil, nil
	}
	a.WorkDays = slices.Clone(a.WorkDays)
	return &a, nil
}

func (s *SchedulingStore) PutAvailability(_ context.Context, userID string, a *domain.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	cp := *a
	cp.WorkDays = slices.Clone(a.WorkDays)
	s.availability[userID] = cp
	return nil
}
