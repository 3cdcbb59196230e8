package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/feed"
	"github.com/boddenberg/timely-go/internal/port"
)

type account struct {
	userID       string
	email        string
	displayName  string
	passwordHash []byte
	disabled     bool
}

// Accounts is an in-process account directory shared by every device
// session. Passwords are stored as bcrypt hashes.
type Accounts struct {
	mu        sync.Mutex
	byEmail   map[string]*account
	bySubject map[string]*account
	resets    []string
	cost      int
	delay     time.Duration
}

// AccountsOption configures Accounts.
type AccountsOption func(*Accounts)

// WithHashCost overrides the bcrypt cost (tests use bcrypt.MinCost).
func WithHashCost(cost int) AccountsOption {
	return func(a *Accounts) { a.cost = cost }
}

// WithIdentityDelay delays the identity emission after a successful sign-in.
// A negative delay never emits, simulating a provider that reports success
// without exposing an identity.
func WithIdentityDelay(d time.Duration) AccountsOption {
	return func(a *Accounts) { a.delay = d }
}

// NewAccounts creates an empty directory.
func NewAccounts(opts ...AccountsOption) *Accounts {
	a := &Accounts{
		byEmail:   make(map[string]*account),
		bySubject: make(map[string]*account),
		cost:      bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register creates an account and returns its user id.
func (a *Accounts) Register(email, password, displayName string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, err := a.registerLocked(email, password, displayName)
	if err != nil {
		return "", err
	}
	return acc.userID, nil
}

// Disable blocks future sign-ins for email.
func (a *Accounts) Disable(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.byEmail[normalizeEmail(email)]; ok {
		acc.disabled = true
	}
}

// ResetRequests lists the emails a password reset was requested for.
func (a *Accounts) ResetRequests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.resets...)
}

// NewSession opens a signed-out credential session for one device.
func (a *Accounts) NewSession() port.CredentialProvider {
	return &CredentialSession{accounts: a, identity: feed.NewWithValue[*domain.Identity](nil)}
}

func (a *Accounts) registerLocked(email, password, displayName string) (*account, error) {
	key := normalizeEmail(email)
	if _, exists := a.byEmail[key]; exists {
		return nil, domain.NewAuthError(domain.AuthEmailInUse, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, domain.NewAuthError(domain.AuthWeakPassword, err)
		}
		return nil, domain.NewAuthError(domain.AuthUnknown, err)
	}
	acc := &account{
		userID:       uuid.NewString(),
		email:        strings.TrimSpace(email),
		displayName:  strings.TrimSpace(displayName),
		passwordHash: hash,
	}
	a.byEmail[key] = acc
	return acc, nil
}

func (a *Accounts) authenticate(email, password string) (*account, error) {
	a.mu.Lock()
	acc, ok := a.byEmail[normalizeEmail(email)]
	a.mu.Unlock()

	if !ok {
		return nil, domain.NewAuthError(domain.AuthInvalidCredentials, nil)
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return nil, domain.NewAuthError(domain.AuthInvalidCredentials, nil)
	}
	if acc.disabled {
		return nil, domain.NewAuthError(domain.AuthUserDisabled, nil)
	}
	return acc, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialSession is the per-device credential provider.
type CredentialSession struct {
	accounts *Accounts
	identity *feed.Feed[*domain.Identity]

	mu      sync.Mutex
	pending *time.Timer
}

func (s *CredentialSession) CurrentIdentity() *domain.Identity {
	id, _ := s.identity.Current()
	return id
}

func (s *CredentialSession) Subscribe() (<-chan *domain.Identity, func()) {
	return s.identity.Subscribe()
}

func (s *CredentialSession) SignInWithPassword(ctx context.Context, email, password string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewAuthError(domain.AuthNetwork, err)
	}
	acc, err := s.accounts.authenticate(email, password)
	if err != nil {
		return err
	}
	s.emit(acc)
	return nil
}

func (s *CredentialSession) SignUp(ctx context.Context, email, password, displayName string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewAuthError(domain.AuthNetwork, err)
	}
	s.accounts.mu.Lock()
	acc, err := s.accounts.registerLocked(email, password, displayName)
	s.accounts.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(acc)
	return nil
}

// SignInWithIDToken treats the token as an opaque subject and creates the
// account on first use.
func (s *CredentialSession) SignInWithIDToken(ctx context.Context, provider, idToken, _ string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewAuthError(domain.AuthNetwork, err)
	}
	if strings.TrimSpace(idToken) == "" {
		return domain.NewAuthError(domain.AuthInvalidCredentials, errors.New("empty id token"))
	}
	subject := provider + ":" + idToken

	s.accounts.mu.Lock()
	acc, ok := s.accounts.bySubject[subject]
	if !ok {
		acc = &account{userID: uuid.NewString()}
		s.accounts.bySubject[subject] = acc
	}
	s.accounts.mu.Unlock()

	if acc.disabled {
		return domain.NewAuthError(domain.AuthUserDisabled, nil)
	}
	s.emit(acc)
	return nil
}

func (s *CredentialSession) SignOut(context.Context) error {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()

	s.identity.Publish(nil)
	return nil
}

// SendPasswordReset records the request. Unknown emails succeed silently so
// the endpoint cannot be used to probe for accounts.
func (s *CredentialSession) SendPasswordReset(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewAuthError(domain.AuthNetwork, err)
	}
	s.accounts.mu.Lock()
	defer s.accounts.mu.Unlock()
	if _, ok := s.accounts.byEmail[normalizeEmail(email)]; ok {
		s.accounts.resets = append(s.accounts.resets, normalizeEmail(email))
	}
	return nil
}

func (s *CredentialSession) emit(acc *account) {
	id := &domain.Identity{UserID: acc.userID, DisplayName: acc.displayName, Email: acc.email}

	delay := s.accounts.delay
	switch {
	case delay == 0:
		s.identity.Publish(id)
	case delay > 0:
		s.mu.Lock()
		if s.pending != nil {
			s.pending.Stop()
		}
		s.pending = time.AfterFunc(delay, func() { s.identity.Publish(id) })
		s.mu.Unlock()
	}
}
