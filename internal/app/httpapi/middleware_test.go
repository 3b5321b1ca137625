package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowplane/controlplane/internal/app/auth"
	"github.com/flowplane/controlplane/internal/app/logging"
)

func TestCORSMiddlewareShortCircuitsPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/secrets", nil)
	corsMiddleware(next).ServeHTTP(rec, req)

	if called {
		t.Fatalf("expected preflight request to short-circuit before reaching next handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestCORSMiddlewarePassesThroughNonPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	corsMiddleware(next).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected non-preflight request to reach next handler")
	}
}

func TestRecoveryMiddlewareConvertsPanicToInternalError(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	log := logging.New("test", "error", "text")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/secrets", nil)
	recoveryMiddleware(log)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after recovered panic, got %d", rec.Code)
	}
}

func TestAuthMiddlewareBypassesPublicPaths(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	authenticator := auth.NewAuthenticator(nil)
	sessions := auth.NewSessionIssuer([]byte("test-secret"), 0)
	mw := authMiddleware(authenticator, sessions, map[string]bool{"/healthz": true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	mw(next).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected public path to bypass authentication")
	}
}

func TestAuthMiddlewareRejectsMissingBearerToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	authenticator := auth.NewAuthenticator(nil)
	sessions := auth.NewSessionIssuer([]byte("test-secret"), 0)
	mw := authMiddleware(authenticator, sessions, map[string]bool{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/secrets", nil)
	mw(next).ServeHTTP(rec, req)

	if called {
		t.Fatalf("expected request without a bearer token to be rejected before reaching next handler")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsValidSessionToken(t *testing.T) {
	var capturedScopes []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := authFromContext(r)
		if !ok {
			t.Fatalf("expected auth context to be set")
		}
		capturedScopes = authCtx.Scopes
	})

	authenticator := auth.NewAuthenticator(nil)
	sessions := auth.NewSessionIssuer([]byte("test-secret"), time.Minute)
	token, err := sessions.Issue("user-1", "org-1", []string{"team:core:secret:read"})
	if err != nil {
		t.Fatalf("issue session token: %v", err)
	}

	mw := authMiddleware(authenticator, sessions, map[string]bool{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/secrets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	mw(next).ServeHTTP(rec, req)

	if len(capturedScopes) != 1 || capturedScopes[0] != "team:core:secret:read" {
		t.Fatalf("unexpected scopes propagated into request context: %v", capturedScopes)
	}
}

func TestAuthMiddlewareRejectsTamperedSessionToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	authenticator := auth.NewAuthenticator(nil)
	sessions := auth.NewSessionIssuer([]byte("test-secret"), time.Minute)
	token, err := sessions.Issue("user-1", "org-1", []string{"secret:read"})
	if err != nil {
		t.Fatalf("issue session token: %v", err)
	}

	mw := authMiddleware(authenticator, sessions, map[string]bool{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/secrets", nil)
	req.Header.Set("Authorization", "Bearer "+token+"tampered")
	mw(next).ServeHTTP(rec, req)

	if called {
		t.Fatalf("expected tampered token to be rejected")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
