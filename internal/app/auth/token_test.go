package auth

import (
	"context"
	"testing"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/identity"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// fakeTokenStore implements storage.TokenStore in memory for the
// authentication and issuance tests below.
type fakeTokenStore struct {
	storage.TokenStore
	tokens     map[string]identity.PersonalAccessToken
	scopes     map[string][]string
	nextID     int
	touched    []string
	incremented []string
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		tokens: make(map[string]identity.PersonalAccessToken),
		scopes: make(map[string][]string),
	}
}

func (f *fakeTokenStore) CreateToken(ctx context.Context, t identity.PersonalAccessToken, scopeList []string) (identity.PersonalAccessToken, error) {
	f.nextID++
	t.ID = string(rune('a' + f.nextID))
	f.tokens[t.ID] = t
	f.scopes[t.ID] = scopeList
	return t, nil
}

func (f *fakeTokenStore) GetToken(ctx context.Context, id string) (identity.PersonalAccessToken, error) {
	t, ok := f.tokens[id]
	if !ok {
		return identity.PersonalAccessToken{}, errNotFound
	}
	return t, nil
}

func (f *fakeTokenStore) GetTokenScopes(ctx context.Context, tokenID string) ([]string, error) {
	return f.scopes[tokenID], nil
}

func (f *fakeTokenStore) TouchLastUsed(ctx context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeTokenStore) IncrementUsage(ctx context.Context, id string) (int, error) {
	f.incremented = append(f.incremented, id)
	t := f.tokens[id]
	t.UsageCount++
	f.tokens[id] = t
	return t.UsageCount, nil
}

func (f *fakeTokenStore) CountActiveTokens(ctx context.Context) (int, error) {
	n := 0
	for _, t := range f.tokens {
		if t.Status == identity.TokenActive {
			n++
		}
	}
	return n, nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNotFound = fakeErr("not found")

func TestIssueAndAuthenticatePersonalAccessToken(t *testing.T) {
	store := newFakeTokenStore()
	_, presented, err := IssuePersonalAccessToken(context.Background(), store, "ci-deploy", []string{"cluster:read"}, 0)
	if err != nil {
		t.Fatalf("IssuePersonalAccessToken() error = %v", err)
	}

	authr := NewAuthenticator(store)
	authCtx, err := authr.Authenticate(context.Background(), presented)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if len(authCtx.Scopes) != 1 || authCtx.Scopes[0] != "cluster:read" {
		t.Fatalf("unexpected scopes: %v", authCtx.Scopes)
	}
	if len(store.touched) != 1 {
		t.Fatalf("expected last_used_at to be touched once, got %d", len(store.touched))
	}
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	store := newFakeTokenStore()
	_, presented, _ := IssuePersonalAccessToken(context.Background(), store, "ci-deploy", nil, 0)

	tampered := presented[:len(presented)-1] + "x"
	authr := NewAuthenticator(store)
	if _, err := authr.Authenticate(context.Background(), tampered); err == nil {
		t.Fatalf("expected authentication to fail for a tampered secret")
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	store := newFakeTokenStore()
	_, presented, err := IssuePersonalAccessToken(context.Background(), store, "short-lived", nil, time.Millisecond)
	if err != nil {
		t.Fatalf("IssuePersonalAccessToken() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	authr := NewAuthenticator(store)
	if _, err := authr.Authenticate(context.Background(), presented); err == nil {
		t.Fatalf("expected authentication to fail for an expired token")
	}
}

func TestSetupTokenEnforcesUsageLimit(t *testing.T) {
	store := newFakeTokenStore()
	_, presented, err := IssueSetupToken(context.Background(), store, "install", []string{"admin:all"}, 1, 0)
	if err != nil {
		t.Fatalf("IssueSetupToken() error = %v", err)
	}

	authr := NewAuthenticator(store)
	if _, err := authr.Authenticate(context.Background(), presented); err != nil {
		t.Fatalf("first use should succeed: %v", err)
	}
	if _, err := authr.Authenticate(context.Background(), presented); err == nil {
		t.Fatalf("expected second use of a single-use setup token to fail")
	}
}

func TestAuthenticateRejectsMalformedToken(t *testing.T) {
	authr := NewAuthenticator(newFakeTokenStore())
	if _, err := authr.Authenticate(context.Background(), "not-a-token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
