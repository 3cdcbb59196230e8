package domain

// ============================================================
// Session state
// ============================================================

// SessionStatus is the top-level routing mode of a device session.
type SessionStatus int

const (
	StatusLoading SessionStatus = iota
	StatusLoggedOut
	StatusOnboarding
	StatusHome
)

var statusNames = [...]string{"loading", "logged_out", "onboarding", "home"}

func (s SessionStatus) String() string {
	if int(s) < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText renders the status as its snake_case name.
func (s SessionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionState is derived, never persisted. Profile is set for Onboarding
// (the draft) and Home; Error carries the message of a failed resolution
// while LoggedOut.
type SessionState struct {
	Status  SessionStatus `json:"status"`
	UserID  string        `json:"userId,omitempty"`
	Profile *UserProfile  `json:"profile,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// LoadingState is the initial state.
func LoadingState() SessionState {
	return SessionState{Status: StatusLoading}
}

// LoggedOutState is entered on sign-out or on a failed profile load.
func LoggedOutState(errMsg string) SessionState {
	return SessionState{Status: StatusLoggedOut, Error: errMsg}
}

// DeriveState computes the session state for an identity and the result of
// its profile lookup. It is total: every input yields exactly one variant.
//   - no identity              -> LoggedOut
//   - load error               -> LoggedOut with the error message and user id
//   - no profile               -> Onboarding with fallback (the default profile)
//   - profile, not completed   -> Onboarding
//   - profile, completed       -> Home
func DeriveState(identity *Identity, profile *UserProfile, loadErr error, fallback func() *UserProfile) SessionState {
	if identity == nil {
		return LoggedOutState("")
	}
	if loadErr != nil {
		s := LoggedOutState(UserMessage(loadErr))
		s.UserID = identity.UserID
		return s
	}
	if profile == nil {
		if fallback != nil {
			profile = fallback()
		}
		if profile == nil {
			profile = &UserProfile{ID: identity.UserID}
		}
		return SessionState{Status: StatusOnboarding, UserID: identity.UserID, Profile: profile}
	}
	if profile.IsOnboardingCompleted {
		return SessionState{Status: StatusHome, UserID: identity.UserID, Profile: profile}
	}
	return SessionState{Status: StatusOnboarding, UserID: identity.UserID, Profile: profile}
}
