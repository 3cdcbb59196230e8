// Package memory provides in-process adapters for the credential provider,
// the profile store and the scheduling store. They back BACKEND=memory for
// local development and are used by tests that need a real store.
package memory

import (
	"context"
	"sync"

	"github.com/boddenberg/timely-go/internal/domain"
)

// ProfileStore keeps encoded profile documents in a map so that reads go
// through the same decode path as the remote stores.
type ProfileStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	err  error
	puts int
}

// NewProfileStore creates an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{docs: make(map[string][]byte)}
}

// WithError makes every subsequent call fail with err (nil clears it).
func (s *ProfileStore) WithError(err error) *ProfileStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// PutRaw stores a raw document, bypassing encoding.
func (s *ProfileStore) PutRaw(userID string, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[userID] = append([]byte(nil), doc...)
}

// Puts returns the number of successful Put calls.
func (s *ProfileStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError(domain.StoreNetwork, "get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[userID]
	if !ok {
		return nil, nil
	}
	return domain.DecodeProfileDocument(doc)
}

// Put upserts the whole document. A stored completed flag is never reset.
func (s *ProfileStore) Put(ctx context.Context, profile *domain.UserProfile) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError(domain.StoreNetwork, "put", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	p := profile.Clone()
	if prev, ok := s.docs[p.ID]; ok {
		if old, err := domain.DecodeProfileDocument(prev); err == nil && old.IsOnboardingCompleted {
			p.IsOnboardingCompleted = true
		}
	}
	doc, err := domain.EncodeProfileDocument(p)
	if err != nil {
		return err
	}
	s.docs[p.ID] = doc
	s.puts++
	return nil
}

func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError(domain.StoreNetwork, "delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	delete(s.docs, userID)
	return nil
}

// Ping always succeeds.
func (s *ProfileStore) Ping(context.Context) error { return nil }
