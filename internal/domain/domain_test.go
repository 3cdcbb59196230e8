package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/boddenberg/timely-go/internal/domain"
)

func TestExtractName(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		email       string
		first       string
		last        string
	}{
		{"full name", "Ada Lovelace", "ada@x.com", "Ada", "Lovelace"},
		{"single name", "Ada", "ada@x.com", "Ada", ""},
		{"email only", "", "ada@x.com", "ada", ""},
		{"three parts", "Ada King Lovelace", "", "Ada", "King Lovelace"},
		{"nothing", "", "", "User", ""},
		{"padded display name", "  Grace Hopper ", "", "Grace", "Hopper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := domain.ExtractName(tt.displayName, tt.email)
			if first != tt.first || last != tt.last {
				t.Errorf("ExtractName(%q, %q) = %q, %q; want %q, %q",
					tt.displayName, tt.email, first, last, tt.first, tt.last)
			}
		})
	}
}

func TestDeriveState_Totality(t *testing.T) {
	id := &domain.Identity{UserID: "u1", Email: "u1@example.com"}
	fallback := func() *domain.UserProfile { return &domain.UserProfile{ID: "u1", FirstName: "u1"} }
	incomplete := &domain.UserProfile{ID: "u1"}
	complete := &domain.UserProfile{ID: "u1", IsOnboardingCompleted: true}
	loadErr := domain.NewStoreError(domain.StorePermissionDenied, "get", nil)

	identities := []*domain.Identity{nil, id}
	profiles := []*domain.UserProfile{nil, incomplete, complete}
	errs := []error{nil, loadErr}

	for _, ident := range identities {
		for _, p := range profiles {
			for _, err := range errs {
				s := domain.DeriveState(ident, p, err, fallback)

				var want domain.SessionStatus
				switch {
				case ident == nil, err != nil:
					want = domain.StatusLoggedOut
				case p == nil, !p.IsOnboardingCompleted:
					want = domain.StatusOnboarding
				default:
					want = domain.StatusHome
				}
				if s.Status != want {
					t.Errorf("identity=%v profile=%v err=%v: got %s, want %s", ident != nil, p, err, s.Status, want)
				}
				if s.Status == domain.StatusOnboarding || s.Status == domain.StatusHome {
					if s.Profile == nil || s.UserID != "u1" {
						t.Errorf("expected profile and user id for %s, got %+v", s.Status, s)
					}
				}
			}
		}
	}
}

func TestDeriveState_ErrorMessageAndFallback(t *testing.T) {
	id := &domain.Identity{UserID: "u1"}

	s := domain.DeriveState(id, nil, domain.NewStoreError(domain.StoreNetwork, "get", nil), nil)
	if s.Error == "" || s.Profile != nil || s.UserID != "u1" {
		t.Errorf("expected error message and user id without profile, got %+v", s)
	}

	s = domain.DeriveState(id, nil, nil, nil)
	if s.Status != domain.StatusOnboarding || s.Profile == nil || s.Profile.ID != "u1" {
		t.Errorf("expected minimal profile without fallback, got %+v", s)
	}
}

func TestDefaultProfileFor(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.FixedZone("TRT", 3*3600))
	p := domain.DefaultProfileFor(domain.Identity{UserID: "u1", Email: "ada@example.com"}, now)

	if p.ID != "u1" || p.FirstName != "ada" || p.LastName != "" || p.IsOnboardingCompleted {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.CreatedAt.Location() != time.UTC || !p.CreatedAt.Equal(now) {
		t.Errorf("expected createdAt in UTC, got %v", p.CreatedAt)
	}
}

func TestProfileDocument_RoundTripKeepsFields(t *testing.T) {
	p := domain.NewUserProfile("u1", "Ada", "Lovelace", "ada@example.com", time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))
	p.Purpose = "Work"
	p.Bio = "Analyst"
	p.IsOnboardingCompleted = true

	raw, err := domain.EncodeProfileDocument(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := domain.DecodeProfileDocument(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("createdAt changed: %v vs %v", got.CreatedAt, p.CreatedAt)
	}
	got.CreatedAt = p.CreatedAt
	if *got != *p {
		t.Errorf("round trip changed profile:\n%+v\n%+v", got, p)
	}
}

func TestProfileDocument_DecodeTolerance(t *testing.T) {
	raw := []byte(`{
		"id": "u1",
		"isOnboardingCompleted": false,
		"createdAt": "2025-06-18T10:00:00Z",
		"firstName": "Ada",
		"lastName": null,
		"favouriteColour": "green"
	}`)

	p, err := domain.DecodeProfileDocument(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.FirstName != "Ada" || p.LastName != "" || p.Purpose != "" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestProfileDocument_DecodeFailures(t *testing.T) {
	docs := map[string]string{
		"not json":          `[1,2`,
		"missing id":        `{"isOnboardingCompleted": true, "createdAt": "2025-06-18T10:00:00Z"}`,
		"empty id":          `{"id": "", "isOnboardingCompleted": true, "createdAt": "2025-06-18T10:00:00Z"}`,
		"missing completed": `{"id": "u1", "createdAt": "2025-06-18T10:00:00Z"}`,
		"mistyped flag":     `{"id": "u1", "isOnboardingCompleted": "yes", "createdAt": "2025-06-18T10:00:00Z"}`,
		"null createdAt":    `{"id": "u1", "isOnboardingCompleted": true, "createdAt": null}`,
		"mistyped optional": `{"id": "u1", "isOnboardingCompleted": true, "createdAt": "2025-06-18T10:00:00Z", "bio": 5}`,
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := domain.DecodeProfileDocument([]byte(doc))
			var storeErr *domain.StoreError
			if !errors.As(err, &storeErr) || storeErr.Kind != domain.StoreDecodeFailure {
				t.Errorf("expected decodeFailure, got %v", err)
			}
		})
	}
}

func TestEncodeProfileDocument_RequiresID(t *testing.T) {
	if _, err := domain.EncodeProfileDocument(&domain.UserProfile{}); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := domain.EncodeProfileDocument(nil); err == nil {
		t.Error("expected error for nil profile")
	}
}

func TestQuestionsForFlow(t *testing.T) {
	std, err := domain.QuestionsForFlow("")
	if err != nil || len(std) != 3 {
		t.Fatalf("expected standard flow, got %d questions, err %v", len(std), err)
	}
	ext, err := domain.QuestionsForFlow(domain.FlowExtended)
	if err != nil || len(ext) != 5 {
		t.Fatalf("expected extended flow, got %d questions, err %v", len(ext), err)
	}
	if _, err := domain.QuestionsForFlow("wizard"); err == nil {
		t.Error("expected error for unknown flow")
	}

	for _, q := range append(std, ext...) {
		if q.Kind == domain.SingleChoice && len(q.Options) == 0 {
			t.Errorf("single-choice question %q has no options", q.Title)
		}
		if err := q.Field.Apply(&domain.UserProfile{}, "x"); err != nil {
			t.Errorf("question %q maps to unknown field: %v", q.Title, err)
		}
	}
}

func TestAvailability_Validate(t *testing.T) {
	valid := domain.DefaultAvailability("Europe/Istanbul")
	if err := valid.Validate(); err != nil {
		t.Fatalf("default availability invalid: %v", err)
	}

	cases := map[string]func(a *domain.Availability){
		"bad start":     func(a *domain.Availability) { a.StartTime = "9am" },
		"end first":     func(a *domain.Availability) { a.StartTime, a.EndTime = "17:00", "09:00" },
		"equal":         func(a *domain.Availability) { a.EndTime = a.StartTime },
		"bad timezone":  func(a *domain.Availability) { a.Timezone = "Mars/Olympus" },
		"no timezone":   func(a *domain.Availability) { a.Timezone = "" },
		"duplicate day": func(a *domain.Availability) { a.WorkDays = []time.Weekday{time.Monday, time.Monday} },
		"bad weekday":   func(a *domain.Availability) { a.WorkDays = []time.Weekday{9} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := domain.DefaultAvailability("UTC")
			mutate(&a)
			var validation *domain.ErrValidation
			if err := a.Validate(); !errors.As(err, &validation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestContactNameFromEmail(t *testing.T) {
	if got := domain.ContactNameFromEmail("zEYNEP@example.com"); got != "Zeynep" {
		t.Errorf("got %q", got)
	}
	if got := domain.ContactNameFromEmail("özge@example.com"); got != "Özge" {
		t.Errorf("got %q", got)
	}
	if got := domain.ContactNameFromEmail("ÇAĞRI@example.com"); got != "Çağri" {
		t.Errorf("got %q", got)
	}
	if got := domain.ContactNameFromEmail("@example.com"); got != "Unknown" {
		t.Errorf("got %q", got)
	}
}

func TestComputeMonthlyStats(t *testing.T) {
	now := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)
	meetings := []domain.Meeting{
		{Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2025, 6, 30, 22, 0, 0, 0, time.UTC)},
		{Date: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
	}

	stats := domain.ComputeMonthlyStats(meetings, 3, now)
	if stats.Meetings != 2 || stats.HoursSaved != 4 || stats.Contacts != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestErrors_UserMessageAndTransience(t *testing.T) {
	network := fmt.Errorf("load: %w", domain.NewStoreError(domain.StoreNetwork, "get", nil))
	denied := domain.NewStoreError(domain.StorePermissionDenied, "get", nil)
	auth := domain.NewAuthError(domain.AuthRateLimited, nil)

	if domain.UserMessage(network) != domain.NewStoreError(domain.StoreNetwork, "", nil).Message() {
		t.Error("expected wrapped store error message")
	}
	if domain.UserMessage(auth) != auth.Message() || auth.Message() == "" {
		t.Error("expected auth message")
	}
	if domain.UserMessage(nil) != "" {
		t.Error("expected empty message for nil")
	}

	if !domain.IsTransient(network) {
		t.Error("network errors are transient")
	}
	for _, err := range []error{denied, auth, &domain.ErrValidation{}, context.Canceled, nil} {
		if domain.IsTransient(err) {
			t.Errorf("expected %v to be permanent", err)
		}
	}
}

func TestSessionStatus_String(t *testing.T) {
	if domain.StatusLoggedOut.String() != "logged_out" || domain.SessionStatus(42).String() != "unknown" {
		t.Error("unexpected status names")
	}
}
