package supabase

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/boddenberg/timely-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ProfileStore persists profile documents in the PostgREST table
// profiles(id text primary key, document jsonb).
type ProfileStore struct {
	client *Client
}

// NewProfileStore creates a profile store on top of c.
func NewProfileStore(c *Client) *ProfileStore {
	return &ProfileStore{client: c}
}

type profileRow struct {
	ID       string          `json:"id"`
	Document json.RawMessage `json:"document"`
}

// Get fetches the profile document for userID, or nil when absent.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := s.client.do(ctx, request{
		op:     "get",
		method: http.MethodGet,
		path:   "profiles?" + eq("id", userID) + "&select=id,document&limit=1",
	})
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows[profileRow]("get", body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0].Document) == 0 || string(rows[0].Document) == "null" {
		return nil, nil
	}
	return domain.DecodeProfileDocument(rows[0].Document)
}

// Put upserts the whole document (last writer wins).
func (s *ProfileStore) Put(ctx context.Context, profile *domain.UserProfile) error {
	ctx, span := tracer.Start(ctx, "Supabase.PutProfile")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", profile.ID),
		attribute.Bool("profile.onboarding_completed", profile.IsOnboardingCompleted),
	)

	doc, err := domain.EncodeProfileDocument(profile)
	if err != nil {
		return err
	}

	_, err = s.client.do(ctx, request{
		op:     "put",
		method: http.MethodPost,
		path:   "profiles?on_conflict=id",
		body:   profileRow{ID: profile.ID, Document: doc},
		prefer: "resolution=merge-duplicates,return=minimal",
	})
	return err
}

// Delete removes the profile document.
func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	_, err := s.client.do(ctx, request{
		op:     "delete",
		method: http.MethodDelete,
		path:   "profiles?" + eq("id", userID),
		prefer: "return=minimal",
	})
	return err
}

// Ping checks that PostgREST answers.
func (s *ProfileStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
