package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ============================================================
// Meetings
// ============================================================

// MeetingPlatform is where a meeting takes place.
type MeetingPlatform string

const (
	PlatformGoogleMeet MeetingPlatform = "Google Meet"
	PlatformZoom       MeetingPlatform = "Zoom"
	PlatformTeams      MeetingPlatform = "Microsoft Teams"
	PlatformPhone      MeetingPlatform = "Phone"
	PlatformInPerson   MeetingPlatform = "In person"
)

// MeetingPlatforms lists every accepted platform.
var MeetingPlatforms = []MeetingPlatform{
	PlatformGoogleMeet, PlatformZoom, PlatformTeams, PlatformPhone, PlatformInPerson,
}

// Valid reports whether p is a known platform.
func (p MeetingPlatform) Valid() bool {
	for _, known := range MeetingPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// Meeting is a scheduled meeting owned by one user.
type Meeting struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Title            string          `json:"title"`
	Date             time.Time       `json:"date"`
	Duration         int             `json:"duration"` // minutes
	Platform         MeetingPlatform `json:"platform"`
	ParticipantEmail string          `json:"participantEmail"`
	MeetingType      string          `json:"meetingType,omitempty"`
}

// MeetingRequest is the payload for POST /meetings.
type MeetingRequest struct {
	Title            string          `json:"title"`
	Date             time.Time       `json:"date"`
	Duration         int             `json:"duration"`
	Platform         MeetingPlatform `json:"platform"`
	ParticipantEmail string          `json:"participantEmail"`
	MeetingType      string          `json:"meetingType,omitempty"`
}

// Validate checks the request fields.
func (r MeetingRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return &ErrValidation{Field: "title", Message: "title is required"}
	}
	if r.Date.IsZero() {
		return &ErrValidation{Field: "date", Message: "date is required"}
	}
	if r.Duration <= 0 {
		return &ErrValidation{Field: "duration", Message: "duration must be positive"}
	}
	if !r.Platform.Valid() {
		return &ErrValidation{Field: "platform", Message: fmt.Sprintf("unknown platform %q", r.Platform)}
	}
	if !strings.Contains(r.ParticipantEmail, "@") {
		return &ErrValidation{Field: "participantEmail", Message: "a valid email is required"}
	}
	return nil
}

// MeetingType is a reusable meeting template.
type MeetingType struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Name        string          `json:"name"`
	Duration    int             `json:"duration"`
	Platform    MeetingPlatform `json:"platform"`
	Description string          `json:"description"`
}

// MeetingTypeRequest is the payload for POST /meeting-types.
type MeetingTypeRequest struct {
	Name        string          `json:"name"`
	Duration    int             `json:"duration"`
	Platform    MeetingPlatform `json:"platform"`
	Description string          `json:"description"`
}

// Validate checks the request fields.
func (r MeetingTypeRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &ErrValidation{Field: "name", Message: "name is required"}
	}
	if r.Duration <= 0 {
		return &ErrValidation{Field: "duration", Message: "duration must be positive"}
	}
	if !r.Platform.Valid() {
		return &ErrValidation{Field: "platform", Message: fmt.Sprintf("unknown platform %q", r.Platform)}
	}
	return nil
}

// DefaultMeetingTypes are seeded for users without any meeting type.
func DefaultMeetingTypes() []MeetingTypeRequest {
	return []MeetingTypeRequest{
		{Name: "30 Minutes - Quick Call", Duration: 30, Platform: PlatformGoogleMeet, Description: "Short and efficient conversations"},
		{Name: "60 Minutes - Deep Dive", Duration: 60, Platform: PlatformGoogleMeet, Description: "Longer, detailed discussions"},
		{Name: "Consulting", Duration: 45, Platform: PlatformZoom, Description: "Professional consulting sessions"},
	}
}

// ============================================================
// Contacts
// ============================================================

// Contact is a meeting participant, derived from meetings.
type Contact struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	MeetingCount int    `json:"meetingCount"`
}

// ContactNameFromEmail capitalizes the local part of an email address.
func ContactNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "Unknown"
	}
	first, size := utf8.DecodeRuneInString(local)
	return string(unicode.ToUpper(first)) + strings.ToLower(local[size:])
}

// ============================================================
// Availability
// ============================================================

// Availability is the user's weekly working window.
type Availability struct {
	WorkDays  []time.Weekday `json:"workDays"`
	StartTime string         `json:"startTime"` // HH:MM
	EndTime   string         `json:"endTime"`   // HH:MM
	Timezone  string         `json:"timezone"`
}

// DefaultAvailability is Monday to Friday, 09:00 to 17:00.
func DefaultAvailability(timezone string) Availability {
	return Availability{
		WorkDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StartTime: "09:00",
		EndTime:   "17:00",
		Timezone:  timezone,
	}
}

// Validate checks the time window and timezone.
func (a Availability) Validate() error {
	start, err := time.Parse("15:04", a.StartTime)
	if err != nil {
		return &ErrValidation{Field: "startTime", Message: "expected HH:MM"}
	}
	end, err := time.Parse("15:04", a.EndTime)
	if err != nil {
		return &ErrValidation{Field: "endTime", Message: "expected HH:MM"}
	}
	if !start.Before(end) {
		return &ErrValidation{Field: "endTime", Message: "end time must be after start time"}
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil || a.Timezone == "" {
		return &ErrValidation{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", a.Timezone)}
	}
	seen := make(map[time.Weekday]bool, len(a.WorkDays))
	for _, d := range a.WorkDays {
		if d < time.Sunday || d > time.Saturday {
			return &ErrValidation{Field: "workDays", Message: "weekday out of range"}
		}
		if seen[d] {
			return &ErrValidation{Field: "workDays", Message: "duplicate weekday"}
		}
		seen[d] = true
	}
	return nil
}

// ============================================================
// Home dashboard
// ============================================================

// MonthlyStats summarizes the current month.
type MonthlyStats struct {
	Meetings   int `json:"meetings"`
	Contacts   int `json:"contacts"`
	HoursSaved int `json:"hoursSaved"`
}

// ComputeMonthlyStats counts meetings in the calendar month of now.
func ComputeMonthlyStats(meetings []Meeting, contacts int, now time.Time) MonthlyStats {
	year, month, _ := now.Date()
	count := 0
	for _, m := range meetings {
		y, mo, _ := m.Date.In(now.Location()).Date()
		if y == year && mo == month {
			count++
		}
	}
	return MonthlyStats{Meetings: count, Contacts: contacts, HoursSaved: count * 2}
}

// Dashboard is the Home screen payload.
type Dashboard struct {
	Greeting     string        `json:"greeting"`
	Profile      *UserProfile  `json:"profile"`
	Upcoming     []Meeting     `json:"upcoming"`
	MeetingTypes []MeetingType `json:"meetingTypes"`
	Contacts     []Contact     `json:"contacts"`
	Availability Availability  `json:"availability"`
	Stats        MonthlyStats  `json:"stats"`
}
