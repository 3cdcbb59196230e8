// Package domain defines the core entities of Timely: the authenticated
// identity, the persisted user profile, the onboarding questionnaire, the
// derived session state and the scheduling models shown on the home screen.
// These types are independent of the credential provider and the store.
package domain

import (
	"strings"
	"time"
)

// ============================================================
// Identity
// ============================================================

// Identity is the authenticated user as reported by the credential provider.
// The core never mutates it. Empty DisplayName / Email mean "absent".
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// ============================================================
// User profile
// ============================================================

// UserProfile is the persisted record of a user's account and onboarding
// answers. ID equals the identity's UserID and never changes.
type UserProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`

	// Onboarding answers. Values are option labels, not a closed enum.
	Purpose              string `json:"purpose"`
	SchedulingPreference string `json:"schedulingPreference"`
	CalendarProvider     string `json:"calendarProvider"`
	JobTitle             string `json:"jobTitle"`
	Department           string `json:"department"`
	Bio                  string `json:"bio"`

	IsOnboardingCompleted bool      `json:"isOnboardingCompleted"`
	CreatedAt             time.Time `json:"createdAt"`

	PhoneNumber string `json:"phoneNumber"`
	AvatarURL   string `json:"avatarURL"`
}

// NewUserProfile builds a profile with every optional field at its default.
func NewUserProfile(id, firstName, lastName, email string, now time.Time) *UserProfile {
	return &UserProfile{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		CreatedAt: now.UTC(),
	}
}

// DefaultProfileFor constructs the profile used for an identity that has no
// stored profile yet.
func DefaultProfileFor(id Identity, now time.Time) *UserProfile {
	first, last := ExtractName(id.DisplayName, id.Email)
	return NewUserProfile(id.UserID, first, last, id.Email, now)
}

// FullName joins first and last name, omitting an empty last name.
func (p *UserProfile) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// DisplayName is the name shown in greetings.
func (p *UserProfile) DisplayName() string {
	return p.FullName()
}

// Clone returns a copy that can be mutated without touching p.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// ExtractName derives first and last name for a fresh profile.
// The first name is the display name (or the local part of the email when the
// display name is absent) up to the first space. The last name is whatever
// follows the first space of the display name. "User" is the fallback when
// neither source is available.
func ExtractName(displayName, email string) (first, last string) {
	displayName = strings.TrimSpace(displayName)
	if displayName != "" {
		first, last, _ = strings.Cut(displayName, " ")
		return first, strings.TrimSpace(last)
	}

	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "User", ""
	}
	first, _, _ = strings.Cut(local, " ")
	return first, ""
}
