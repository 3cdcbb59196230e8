// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/timely-go/internal/domain"
)

// CredentialProvider authenticates one device session and reports its
// identity. Implementations never retry failed calls; failures are returned
// as *domain.AuthError.
type CredentialProvider interface {
	// CurrentIdentity returns the signed-in identity, or nil.
	CurrentIdentity() *domain.Identity

	// Subscribe streams identity changes. The current identity (possibly
	// nil) is delivered first. A slow reader only sees the latest value.
	Subscribe() (<-chan *domain.Identity, func())

	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, displayName string) error
	// SignInWithIDToken exchanges a third-party identity token (Apple).
	SignInWithIDToken(ctx context.Context, provider, idToken, nonce string) error
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
}

// CredentialProviderFactory opens a credential provider per device session.
type CredentialProviderFactory interface {
	NewSession() CredentialProvider
}

// ProfileStore persists one UserProfile document per user id.
// Get returns (nil, nil) when no document exists.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	Put(ctx context.Context, profile *domain.UserProfile) error
	Delete(ctx context.Context, userID string) error
}

// SchedulingStore persists meetings, meeting types and availability per user.
// GetAvailability returns (nil, nil) when the user never saved one.
type SchedulingStore interface {
	ListMeetings(ctx context.Context, userID string) ([]domain.Meeting, error)
	CreateMeeting(ctx context.Context, meeting *domain.Meeting) error

	ListMeetingTypes(ctx context.Context, userID string) ([]domain.MeetingType, error)
	CreateMeetingType(ctx context.Context, meetingType *domain.MeetingType) error

	GetAvailability(ctx context.Context, userID string) (*domain.Availability, error)
	PutAvailability(ctx context.Context, userID string, availability *domain.Availability) error
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
