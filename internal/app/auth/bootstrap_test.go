package auth

import (
	"context"
	"testing"

	"github.com/flowplane/controlplane/internal/app/audit"
	auditdomain "github.com/flowplane/controlplane/internal/app/domain/audit"
	"github.com/flowplane/controlplane/internal/app/domain/identity"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// fakeBootstrapStore implements storage.Store, delegating only the methods
// Bootstrap and token issuance actually call.
type fakeBootstrapStore struct {
	storage.Store
	tokens *fakeTokenStore
}

func newFakeBootstrapStore() *fakeBootstrapStore {
	return &fakeBootstrapStore{tokens: newFakeTokenStore()}
}

func (f *fakeBootstrapStore) CountActiveTokens(ctx context.Context) (int, error) {
	return f.tokens.CountActiveTokens(ctx)
}

func (f *fakeBootstrapStore) CreateToken(ctx context.Context, t identity.PersonalAccessToken, scopeList []string) (identity.PersonalAccessToken, error) {
	return f.tokens.CreateToken(ctx, t, scopeList)
}

func (f *fakeBootstrapStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeAuditStore struct {
	storage.AuditStore
	recorded []auditdomain.Event
}

func (f *fakeAuditStore) RecordEvent(ctx context.Context, e auditdomain.Event) (auditdomain.Event, error) {
	f.recorded = append(f.recorded, e)
	return e, nil
}

func TestBootstrapSeedsTokenWhenNoneExist(t *testing.T) {
	store := newFakeBootstrapStore()
	auditStore := &fakeAuditStore{}
	auditSvc := audit.New(auditStore)

	presented, err := Bootstrap(context.Background(), store, auditSvc)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if presented == "" {
		t.Fatalf("expected a seeded token to be returned")
	}
	if len(auditStore.recorded) != 1 || auditStore.recorded[0].Action != "token.seeded" {
		t.Fatalf("expected a token.seeded audit event, got %+v", auditStore.recorded)
	}
}

func TestBootstrapIsNoOpWhenATokenAlreadyExists(t *testing.T) {
	store := newFakeBootstrapStore()
	_, _, err := IssuePersonalAccessToken(context.Background(), store.tokens, "existing", nil, 0)
	if err != nil {
		t.Fatalf("seed existing token: %v", err)
	}

	auditStore := &fakeAuditStore{}
	auditSvc := audit.New(auditStore)

	presented, err := Bootstrap(context.Background(), store, auditSvc)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if presented != "" {
		t.Fatalf("expected no token to be seeded when one already exists")
	}
	if len(auditStore.recorded) != 0 {
		t.Fatalf("expected no audit event when bootstrap is a no-op")
	}
}
