package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/feed"
)

// --- Credential provider driven by the test ---

type fakeProvider struct {
	ids        *feed.Feed[*domain.Identity]
	signOutErr error

	mu  sync.Mutex
	sub <-chan *domain.Identity
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{ids: feed.NewWithValue[*domain.Identity](nil)}
}

func (p *fakeProvider) emit(id *domain.Identity) { p.ids.Publish(id) }

func (p *fakeProvider) CurrentIdentity() *domain.Identity {
	id, _ := p.ids.Current()
	return id
}

func (p *fakeProvider) Subscribe() (<-chan *domain.Identity, func()) {
	ch, cancel := p.ids.Subscribe()
	p.mu.Lock()
	p.sub = ch
	p.mu.Unlock()
	return ch, cancel
}

// delivered reports whether the session has taken the last emitted identity.
func (p *fakeProvider) delivered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub != nil && len(p.sub) == 0
}

func (p *fakeProvider) SignInWithPassword(context.Context, string, string) error { return nil }
func (p *fakeProvider) SignUp(context.Context, string, string, string) error     { return nil }
func (p *fakeProvider) SignInWithIDToken(context.Context, string, string, string) error {
	return nil
}
func (p *fakeProvider) SendPasswordReset(context.Context, string) error { return nil }

func (p *fakeProvider) SignOut(context.Context) error {
	p.ids.Publish(nil)
	return p.signOutErr
}

// --- Profile store with gates ---

type gatedStore struct {
	mu       sync.Mutex
	profiles map[string]*domain.UserProfile
	getErr   map[string]error
	getGates map[string]chan struct{}
	putGate  chan struct{}
	putErr   error
	puts     int

	gets    chan string
	putting chan *domain.UserProfile
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		profiles: make(map[string]*domain.UserProfile),
		getErr:   make(map[string]error),
		getGates: make(map[string]chan struct{}),
		gets:     make(chan string, 32),
		putting:  make(chan *domain.UserProfile, 32),
	}
}

// holdGet blocks Get(userID) until the returned release func is called.
func (s *gatedStore) holdGet(userID string) func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.getGates[userID] = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// holdPut blocks every Put until the returned release func is called.
func (s *gatedStore) holdPut() func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.putGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *gatedStore) setGetErr(userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.getErr, userID)
		return
	}
	s.getErr[userID] = err
}

func (s *gatedStore) setPutErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

func (s *gatedStore) seed(p *domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p.Clone()
}

func (s *gatedStore) stored(userID string) *domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID].Clone()
}

func (s *gatedStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *gatedStore) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	select {
	case s.gets <- userID:
	default:
	}

	s.mu.Lock()
	gate := s.getGates[userID]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, domain.NewStoreError(domain.StoreNetwork, "get", ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[userID]; err != nil {
		return nil, err
	}
	return s.profiles[userID].Clone(), nil
}

func (s *gatedStore) Put(ctx context.Context, p *domain.UserProfile) error {
	select {
	case s.putting <- p.Clone():
	default:
	}

	s.mu.Lock()
	gate := s.putGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.NewStoreError(domain.StoreNetwork, "put", ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.profiles[p.ID] = p.Clone()
	return nil
}

func (s *gatedStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}

// --- Helpers ---

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}
