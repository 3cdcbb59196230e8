package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================
// Profile document encoding (shared by every store adapter)
// ============================================================

// EncodeProfileDocument serializes a profile into its key/value document form.
func EncodeProfileDocument(p *UserProfile) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode profile: nil profile")
	}
	if p.ID == "" {
		return nil, &ErrValidation{Field: "id", Message: "profile id is required"}
	}
	doc := *p
	doc.CreatedAt = p.CreatedAt.UTC()
	return json.Marshal(&doc)
}

// DecodeProfileDocument parses a stored document. Unknown keys are ignored and
// missing optional strings default to "". A missing or mistyped required key
// (id, isOnboardingCompleted, createdAt) yields a decodeFailure StoreError so
// that a malformed document never turns into a fabricated profile.
func DecodeProfileDocument(raw []byte) (*UserProfile, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, NewStoreError(StoreDecodeFailure, "decode", err)
	}

	var id string
	if err := requiredField(fields, "id", &id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, NewStoreError(StoreDecodeFailure, "decode", fmt.Errorf("field id is empty"))
	}
	var completed bool
	if err := requiredField(fields, "isOnboardingCompleted", &completed); err != nil {
		return nil, err
	}
	var createdAt time.Time
	if err := requiredField(fields, "createdAt", &createdAt); err != nil {
		return nil, err
	}

	p := &UserProfile{
		ID:                    id,
		IsOnboardingCompleted: completed,
		CreatedAt:             createdAt.UTC(),
	}
	optional := map[string]*string{
		"firstName":            &p.FirstName,
		"lastName":             &p.LastName,
		"email":                &p.Email,
		"purpose":              &p.Purpose,
		"schedulingPreference": &p.SchedulingPreference,
		"calendarProvider":     &p.CalendarProvider,
		"jobTitle":             &p.JobTitle,
		"department":           &p.Department,
		"bio":                  &p.Bio,
		"phoneNumber":          &p.PhoneNumber,
		"avatarURL":            &p.AvatarURL,
	}
	for key, dst := range optional {
		v, ok := fields[key]
		if !ok || string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return nil, NewStoreError(StoreDecodeFailure, "decode", fmt.Errorf("field %s: %w", key, err))
		}
	}
	return p, nil
}

func requiredField(fields map[string]json.RawMessage, key string, dst any) error {
	v, ok := fields[key]
	if !ok || string(v) == "null" {
		return NewStoreError(StoreDecodeFailure, "decode", fmt.Errorf("missing required field %s", key))
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return NewStoreError(StoreDecodeFailure, "decode", fmt.Errorf("field %s: %w", key, err))
	}
	return nil
}
