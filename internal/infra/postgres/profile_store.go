package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/timely-go/internal/domain"
)

var tracer = otel.Tracer("postgres")

// ProfileStore persists profile documents in profiles(id, document jsonb).
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a profile store backed by pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Get returns the profile document for userID, or nil when absent.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM profiles WHERE id = $1`, userID).Scan(&doc)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get", err)
	}
	return domain.DecodeProfileDocument(doc)
}

// Put upserts the whole document. A stored isOnboardingCompleted=true is
// kept even if the incoming document says false.
func (s *ProfileStore) Put(ctx context.Context, profile *domain.UserProfile) error {
	ctx, span := tracer.Start(ctx, "Postgres.PutProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", profile.ID))

	doc, err := domain.EncodeProfileDocument(profile)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (id, document, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
			document = CASE
				WHEN (profiles.document->>'isOnboardingCompleted')::boolean
				THEN EXCLUDED.document || '{"isOnboardingCompleted": true}'::jsonb
				ELSE EXCLUDED.document
			END,
			updated_at = now()`,
		profile.ID, string(doc))
	if err != nil {
		return storeError("put", err)
	}
	return nil
}

// Delete removes the profile document.
func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if _, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, userID); err != nil {
		return storeError("delete", err)
	}
	return nil
}

// Ping checks the pool.
func (s *ProfileStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}
