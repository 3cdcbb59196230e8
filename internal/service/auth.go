// Package service holds the session core: the per-device SessionMachine,
// the Onboarding aggregator, credential flows and the scheduling workspace.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/observability"
	"github.com/boddenberg/timely-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const (
	minPasswordLength = 6
	appleProvider     = "apple"
)

// AuthConfig configures AuthService.
type AuthConfig struct {
	// ConfirmTimeout bounds the wait for the provider to report an identity
	// after a successful sign-in.
	ConfirmTimeout time.Duration
	// AttemptsPerMinute limits credential attempts per email.
	AttemptsPerMinute int
}

// AuthService validates credential input and drives the provider of a device
// session. It never retries a provider call.
type AuthService struct {
	cfg     AuthConfig
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAuthService creates an auth service.
func NewAuthService(cfg AuthConfig, metrics *observability.Metrics, logger *zap.Logger) *AuthService {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 5 * time.Second
	}
	if cfg.AttemptsPerMinute <= 0 {
		cfg.AttemptsPerMinute = 10
	}
	return &AuthService{
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ============================================================
// Sign in: POST /v1/sessions/{sid}/sign-in
// ============================================================

func (s *AuthService) SignIn(ctx context.Context, provider port.CredentialProvider, email, password string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.SignIn")
	defer span.End()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return s.fail("sign_in", domain.NewAuthError(domain.AuthInvalidCredentials, errors.New("password too short")))
	}
	if err := s.allow(email); err != nil {
		return s.fail("sign_in", err)
	}

	if err := provider.SignInWithPassword(ctx, email, password); err != nil {
		return s.fail("sign_in", err)
	}
	if err := s.awaitIdentity(ctx, provider); err != nil {
		return s.fail("sign_in", err)
	}
	s.logger.Info("signed in", zap.String("email_domain", emailDomain(email)))
	return nil
}

// ============================================================
// Sign up: POST /v1/sessions/{sid}/sign-up
// ============================================================

// SignUp creates an account. When the provider requires email confirmation
// no identity appears and the call still succeeds; the session stays
// LoggedOut.
func (s *AuthService) SignUp(ctx context.Context, provider port.CredentialProvider, email, password, displayName string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.SignUp")
	defer span.End()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if strings.TrimSpace(displayName) == "" {
		return &domain.ErrValidation{Field: "name", Message: "Please enter your name."}
	}
	if !strongEnough(password) {
		return s.fail("sign_up", domain.NewAuthError(domain.AuthWeakPassword, errors.New("password rejected locally")))
	}
	if err := s.allow(email); err != nil {
		return s.fail("sign_up", err)
	}

	if err := provider.SignUp(ctx, email, password, strings.TrimSpace(displayName)); err != nil {
		return s.fail("sign_up", err)
	}
	if provider.CurrentIdentity() == nil {
		s.logger.Info("sign-up awaiting email confirmation", zap.String("email_domain", emailDomain(email)))
	}
	return nil
}

// ============================================================
// Apple: POST /v1/sessions/{sid}/apple
// ============================================================

func (s *AuthService) SignInWithApple(ctx context.Context, provider port.CredentialProvider, idToken, nonce string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.SignInWithApple")
	defer span.End()
	span.SetAttributes(attribute.String("auth.provider", appleProvider))

	if strings.TrimSpace(idToken) == "" {
		return &domain.ErrValidation{Field: "idToken", Message: "Apple identity token is required."}
	}
	if err := provider.SignInWithIDToken(ctx, appleProvider, idToken, nonce); err != nil {
		return s.fail("apple", err)
	}
	if err := s.awaitIdentity(ctx, provider); err != nil {
		return s.fail("apple", err)
	}
	return nil
}

// ============================================================
// Password reset: POST /v1/sessions/{sid}/password-reset
// ============================================================

func (s *AuthService) SendPasswordReset(ctx context.Context, provider port.CredentialProvider, email string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.SendPasswordReset")
	defer span.End()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := s.allow(email); err != nil {
		return s.fail("password_reset", err)
	}
	if err := provider.SendPasswordReset(ctx, email); err != nil {
		return s.fail("password_reset", err)
	}
	return nil
}

// awaitIdentity waits until the provider reports an identity, bounded by
// the confirmation timeout.
func (s *AuthService) awaitIdentity(ctx context.Context, provider port.CredentialProvider) error {
	if provider.CurrentIdentity() != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	identities, unsubscribe := provider.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			if provider.CurrentIdentity() != nil {
				return nil
			}
			return domain.NewAuthError(domain.AuthTimeout, fmt.Errorf("no identity after %s", s.cfg.ConfirmTimeout))
		case id, ok := <-identities:
			if !ok {
				return domain.NewAuthError(domain.AuthUnknown, errors.New("identity stream closed"))
			}
			if id != nil {
				return nil
			}
		}
	}
}

// allow applies the per-email attempt limit.
func (s *AuthService) allow(email string) error {
	s.mu.Lock()
	lim, ok := s.limiters[email]
	if !ok {
		perAttempt := time.Minute / time.Duration(s.cfg.AttemptsPerMinute)
		lim = rate.NewLimiter(rate.Every(perAttempt), s.cfg.AttemptsPerMinute)
		s.limiters[email] = lim
	}
	s.mu.Unlock()

	if !lim.Allow() {
		return domain.NewAuthError(domain.AuthRateLimited, errors.New("too many attempts for this email"))
	}
	return nil
}

// fail records auth failures and passes err through.
func (s *AuthService) fail(op string, err error) error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		s.metrics.IncrAuthFailure(authErr.Kind)
		s.logger.Warn("auth failed", zap.String("op", op), zap.String("kind", string(authErr.Kind)), zap.Error(err))
		return err
	}
	s.metrics.IncrAuthFailure(domain.AuthUnknown)
	s.logger.Warn("auth failed", zap.String("op", op), zap.Error(err))
	return domain.NewAuthError(domain.AuthUnknown, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return &domain.ErrValidation{Field: "email", Message: "Please enter a valid email address."}
	}
	return nil
}

// strongEnough: at least six characters with a letter and a digit.
func strongEnough(password string) bool {
	if len(password) < minPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}
