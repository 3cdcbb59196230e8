package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/feed"
	"github.com/boddenberg/timely-go/internal/port"
)

// ============================================================
// GoTrue credential provider
// ============================================================

// AuthProvider talks to Supabase GoTrue (/auth/v1). It is shared; each
// device session gets its own AuthSession from NewSession. Auth calls are
// never retried.
type AuthProvider struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
	jwtSecret  []byte
	logger     *zap.Logger
}

// NewAuthProvider creates a GoTrue provider. jwtSecret verifies the HS256
// access tokens GoTrue issues.
func NewAuthProvider(httpClient *http.Client, baseURL, anonKey, jwtSecret string, logger *zap.Logger) *AuthProvider {
	return &AuthProvider{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		jwtSecret:  []byte(jwtSecret),
		logger:     logger,
	}
}

// NewSession opens a signed-out session.
func (p *AuthProvider) NewSession() port.CredentialProvider {
	return &AuthSession{provider: p, identity: feed.NewWithValue[*domain.Identity](nil)}
}

// tokenResponse is the GoTrue session payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// goTrueError covers both the current and the legacy GoTrue error shapes.
type goTrueError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// accessClaims are the GoTrue access token claims we read.
type accessClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// post sends a JSON body to /auth/v1/<path>. bearer is optional.
func (p *AuthProvider) post(ctx context.Context, path, bearer string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewAuthError(domain.AuthUnknown, err)
	}

	url := fmt.Sprintf("%s/auth/v1/%s", p.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, domain.NewAuthError(domain.AuthUnknown, err)
	}
	req.Header.Set("apikey", p.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("gotrue: request failed", zap.String("path", path), zap.Error(err))
		return nil, domain.NewAuthError(domain.AuthNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAuthError(domain.AuthNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := classifyAuthFailure(resp.StatusCode, body)
		p.logger.Warn("gotrue: non-2xx response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(kind)),
		)
		return nil, domain.NewAuthError(kind, fmt.Errorf("gotrue returned status %d", resp.StatusCode))
	}
	return body, nil
}

// classifyAuthFailure maps a GoTrue error response onto an AuthErrorKind.
func classifyAuthFailure(status int, body []byte) domain.AuthErrorKind {
	var e goTrueError
	_ = json.Unmarshal(body, &e)
	code := strings.ToLower(e.ErrorCode + " " + e.Error)
	msg := strings.ToLower(e.Msg + " " + e.ErrorDescription)

	switch {
	case status == http.StatusTooManyRequests || strings.Contains(code, "rate_limit"):
		return domain.AuthRateLimited
	case strings.Contains(code, "user_banned") || strings.Contains(msg, "banned"):
		return domain.AuthUserDisabled
	case strings.Contains(code, "weak_password") || strings.Contains(msg, "password should"):
		return domain.AuthWeakPassword
	case strings.Contains(code, "user_already_exists") || strings.Contains(code, "email_exists") ||
		strings.Contains(msg, "already registered"):
		return domain.AuthEmailInUse
	case strings.Contains(code, "invalid_credentials") || strings.Contains(code, "invalid_grant") ||
		strings.Contains(msg, "invalid login credentials"):
		return domain.AuthInvalidCredentials
	case status >= 500:
		return domain.AuthNetwork
	default:
		return domain.AuthUnknown
	}
}

// identityFromToken verifies an access token and reads the identity from it.
func (p *AuthProvider) identityFromToken(accessToken string) (*domain.Identity, error) {
	token, err := jwt.ParseWithClaims(accessToken, &accessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil {
		return nil, domain.NewAuthError(domain.AuthUnknown, fmt.Errorf("verify access token: %w", err))
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, domain.NewAuthError(domain.AuthUnknown, errors.New("access token without subject"))
	}

	id := &domain.Identity{UserID: claims.Subject, Email: claims.Email}
	for _, key := range []string{"full_name", "name"} {
		if v, ok := claims.UserMetadata[key].(string); ok && strings.TrimSpace(v) != "" {
			id.DisplayName = v
			break
		}
	}
	return id, nil
}

// ============================================================
// Per-device session
// ============================================================

// AuthSession holds the tokens of one device session.
type AuthSession struct {
	provider *AuthProvider
	identity *feed.Feed[*domain.Identity]

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func (s *AuthSession) CurrentIdentity() *domain.Identity {
	id, _ := s.identity.Current()
	return id
}

func (s *AuthSession) Subscribe() (<-chan *domain.Identity, func()) {
	return s.identity.Subscribe()
}

func (s *AuthSession) SignInWithPassword(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "GoTrue.SignInWithPassword")
	defer span.End()

	body, err := s.provider.post(ctx, "token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	return s.establish(body)
}

// SignUp creates the account. When the project requires email confirmation
// GoTrue returns no session and no identity is emitted.
func (s *AuthSession) SignUp(ctx context.Context, email, password, displayName string) error {
	ctx, span := tracer.Start(ctx, "GoTrue.SignUp")
	defer span.End()

	payload := map[string]any{"email": email, "password": password}
	if displayName != "" {
		payload["data"] = map[string]string{"full_name": displayName}
	}
	body, err := s.provider.post(ctx, "signup", "", payload)
	if err != nil {
		return err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		s.provider.logger.Info("gotrue: sign-up pending confirmation")
		return nil
	}
	return s.establish(body)
}

func (s *AuthSession) SignInWithIDToken(ctx context.Context, provider, idToken, nonce string) error {
	ctx, span := tracer.Start(ctx, "GoTrue.SignInWithIDToken")
	defer span.End()
	span.SetAttributes(attribute.String("auth.provider", provider))

	payload := map[string]string{"provider": provider, "id_token": idToken}
	if nonce != "" {
		payload["nonce"] = nonce
	}
	body, err := s.provider.post(ctx, "token?grant_type=id_token", "", payload)
	if err != nil {
		return err
	}
	return s.establish(body)
}

// SignOut always clears the local session; a failed remote logout is
// returned after the identity has been cleared.
func (s *AuthSession) SignOut(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "GoTrue.SignOut")
	defer span.End()

	s.mu.Lock()
	token := s.accessToken
	s.accessToken, s.refreshToken = "", ""
	s.mu.Unlock()

	s.identity.Publish(nil)

	if token == "" {
		return nil
	}
	_, err := s.provider.post(ctx, "logout", token, struct{}{})
	return err
}

func (s *AuthSession) SendPasswordReset(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "GoTrue.Recover")
	defer span.End()

	_, err := s.provider.post(ctx, "recover", "", map[string]string{"email": email})
	return err
}

// establish stores the session tokens and publishes the identity.
func (s *AuthSession) establish(body []byte) error {
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return domain.NewAuthError(domain.AuthUnknown, fmt.Errorf("decode session: %w", err))
	}
	if tok.AccessToken == "" {
		return domain.NewAuthError(domain.AuthUnknown, errors.New("session without access token"))
	}
	id, err := s.provider.identityFromToken(tok.AccessToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken, s.refreshToken = tok.AccessToken, tok.RefreshToken
	s.mu.Unlock()

	s.identity.Publish(id)
	return nil
}
