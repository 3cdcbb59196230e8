package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/resilience"
	"github.com/boddenberg/timely-go/internal/infra/supabase"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

func newClient(t *testing.T, h http.HandlerFunc) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	guard := resilience.NewGuard("supabase-test", resilience.Config{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxConcurrency: 4,
		Retryable:      domain.IsTransient,
	})
	return supabase.NewClient(srv.Client(), srv.URL, "anon", "service", guard, zap.NewNop())
}

func TestProfileStore_Get(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/profiles" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "eq.u1" {
			t.Errorf("expected id filter eq.u1, got %q", got)
		}
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer service" {
			t.Error("expected apikey and service role bearer headers")
		}
		w.Write([]byte(`[{"id":"u1","document":{"id":"u1","firstName":"Ada","isOnboardingCompleted":true,"createdAt":"2025-06-01T10:00:00Z","legacyField":1}}]`))
	})
	store := supabase.NewProfileStore(client)

	p, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FirstName != "Ada" || !p.IsOnboardingCompleted || p.LastName != "" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestProfileStore_GetMissing(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})

	p, err := supabase.NewProfileStore(client).Get(context.Background(), "u1")
	if err != nil || p != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", p, err)
	}
}

func TestProfileStore_GetErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.StoreErrorKind
	}{
		{"forbidden", http.StatusForbidden, `{"message":"denied"}`, domain.StorePermissionDenied},
		{"server error", http.StatusBadGateway, `oops`, domain.StoreNetwork},
		{"missing relation", http.StatusNotFound, `{"code":"42P01","message":"relation \"public.profiles\" does not exist"}`, domain.StoreUnknown},
		{"unknown route", http.StatusNotFound, `{"code":"PGRST205","message":"Could not find the table"}`, domain.StoreUnknown},
		{"conflict", http.StatusConflict, `{"code":"23505"}`, domain.StoreUnknown},
		{"malformed document", http.StatusOK, `[{"id":"u1","document":{"id":"u1"}}]`, domain.StoreDecodeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := supabase.NewProfileStore(client).Get(context.Background(), "u1")
			var storeErr *domain.StoreError
			if !errors.As(err, &storeErr) || storeErr.Kind != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestProfileStore_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	})

	if _, err := supabase.NewProfileStore(client).Get(context.Background(), "u1"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestProfileStore_Put(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Query().Get("on_conflict") != "id" {
			t.Error("expected on_conflict=id")
		}
		if !strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates") {
			t.Errorf("expected upsert preference, got %q", r.Header.Get("Prefer"))
		}
		var row struct {
			ID       string         `json:"id"`
			Document map[string]any `json:"document"`
		}
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if row.ID != "u1" || row.Document["purpose"] != "Work" || row.Document["isOnboardingCompleted"] != true {
			t.Errorf("unexpected row: %+v", row)
		}
		w.WriteHeader(http.StatusCreated)
	})

	p := domain.NewUserProfile("u1", "Ada", "", "ada@x.com", time.Now())
	p.Purpose = "Work"
	p.IsOnboardingCompleted = true
	if err := supabase.NewProfileStore(client).Put(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProfileStore_PutErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   domain.StoreErrorKind
	}{
		{"missing relation", http.StatusNotFound, domain.StoreUnknown},
		{"forbidden", http.StatusForbidden, domain.StorePermissionDenied},
		{"bad request", http.StatusBadRequest, domain.StoreUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"code":"42P01"}`))
			})

			p := domain.NewUserProfile("u1", "Ada", "", "ada@x.com", time.Now())
			p.IsOnboardingCompleted = true
			err := supabase.NewProfileStore(client).Put(context.Background(), p)
			var storeErr *domain.StoreError
			if !errors.As(err, &storeErr) || storeErr.Kind != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestSchedulingStore_MissingTableIsAnError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"PGRST205"}`))
	})
	store := supabase.NewSchedulingStore(client)

	if _, err := store.ListMeetings(context.Background(), "u1"); err == nil {
		t.Error("expected error listing meetings from a missing table")
	}
	if a, err := store.GetAvailability(context.Background(), "u1"); err == nil {
		t.Errorf("expected error reading availability, got %+v", a)
	}
}

func TestProfileStore_Delete(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Query().Get("id") != "eq.u1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := supabase.NewProfileStore(client).Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchedulingStore_ListMeetings(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/meetings" || r.URL.Query().Get("order") != "date.asc" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`[{"id":"m1","user_id":"u1","title":"Sync","date":"2025-06-02T09:00:00Z","duration":30,"platform":"Zoom","participant_email":"bob@x.com","meeting_type":"Consulting"}]`))
	})

	got, err := supabase.NewSchedulingStore(client).ListMeetings(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Platform != domain.PlatformZoom || got[0].ParticipantEmail != "bob@x.com" {
		t.Errorf("unexpected meetings: %+v", got)
	}
}

func TestSchedulingStore_AvailabilityAbsent(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})

	a, err := supabase.NewSchedulingStore(client).GetAvailability(context.Background(), "u1")
	if err != nil || a != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", a, err)
	}
}

func TestSchedulingStore_PutAvailability(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"work_days":[1,2,3,4,5]`) {
			t.Errorf("unexpected body %s", body)
		}
		w.WriteHeader(http.StatusCreated)
	})

	a := domain.DefaultAvailability("UTC")
	if err := supabase.NewSchedulingStore(client).PutAvailability(context.Background(), "u1", &a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- GoTrue ---

func signToken(t *testing.T, sub, email, name string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":           sub,
		"email":         email,
		"user_metadata": map[string]any{"full_name": name},
		"exp":           time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newAuthProvider(t *testing.T, h http.HandlerFunc) *supabase.AuthProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return supabase.NewAuthProvider(srv.Client(), srv.URL, "anon", testJWTSecret, zap.NewNop())
}

func TestAuthSession_SignInWithPassword(t *testing.T) {
	token := signToken(t, "user-1", "ada@x.com", "Ada Lovelace")
	provider := newAuthProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s", r.URL)
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": token, "refresh_token": "r1"})
	})

	session := provider.NewSession()
	if err := session.SignInWithPassword(context.Background(), "ada@x.com", "secret1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := session.CurrentIdentity()
	if id == nil || id.UserID != "user-1" || id.DisplayName != "Ada Lovelace" || id.Email != "ada@x.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestAuthSession_RejectsForgedToken(t *testing.T) {
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte("wrong-secret"))
	provider := newAuthProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": forged})
	})

	session := provider.NewSession()
	if err := session.SignInWithPassword(context.Background(), "ada@x.com", "secret1"); err == nil {
		t.Fatal("expected verification error")
	}
	if session.CurrentIdentity() != nil {
		t.Fatal("expected no identity")
	}
}

func TestAuthSession_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.AuthErrorKind
	}{
		{"invalid credentials", 400, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`, domain.AuthInvalidCredentials},
		{"legacy invalid grant", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, domain.AuthInvalidCredentials},
		{"email in use", 422, `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`, domain.AuthEmailInUse},
		{"weak password", 422, `{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters"}`, domain.AuthWeakPassword},
		{"rate limited", 429, `{}`, domain.AuthRateLimited},
		{"banned", 400, `{"error_code":"user_banned","msg":"User is banned"}`, domain.AuthUserDisabled},
		{"server error", 503, `oops`, domain.AuthNetwork},
		{"other", 418, `{}`, domain.AuthUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newAuthProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := provider.NewSession().SignInWithPassword(context.Background(), "ada@x.com", "x")
			var authErr *domain.AuthError
			if !errors.As(err, &authErr) || authErr.Kind != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthSession_SignUpPendingConfirmation(t *testing.T) {
	provider := newAuthProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		data, _ := body["data"].(map[string]any)
		if data["full_name"] != "Ada Lovelace" {
			t.Errorf("expected display name in metadata, got %v", body)
		}
		w.Write([]byte(`{"id":"user-1","email":"ada@x.com"}`))
	})

	session := provider.NewSession()
	if err := session.SignUp(context.Background(), "ada@x.com", "secret1", "Ada Lovelace"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.CurrentIdentity() != nil {
		t.Fatal("expected no identity until confirmed")
	}
}

func TestAuthSession_SignOutClearsIdentity(t *testing.T) {
	token := signToken(t, "user-1", "ada@x.com", "")
	var logoutAuth string
	provider := newAuthProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/logout" {
			logoutAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": token})
	})

	session := provider.NewSession()
	ch, cancel := session.Subscribe()
	defer cancel()
	<-ch

	_ = session.SignInWithIDToken(context.Background(), "apple", "apple-token", "nonce")
	if id := <-ch; id == nil || id.UserID != "user-1" {
		t.Fatalf("expected identity, got %+v", id)
	}

	if err := session.SignOut(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id := <-ch; id != nil {
		t.Fatalf("expected nil identity, got %+v", id)
	}
	if logoutAuth != "Bearer "+token {
		t.Errorf("expected logout with access token, got %q", logoutAuth)
	}
}
