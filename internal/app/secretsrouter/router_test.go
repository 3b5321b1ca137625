package secretsrouter

import (
	"context"
	"testing"

	"github.com/flowplane/controlplane/internal/app/audit"
	auditdomain "github.com/flowplane/controlplane/internal/app/domain/audit"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/storage"
)

type fakeBackend struct {
	spec domainsecret.Spec
	err  error
}

func (f *fakeBackend) Fetch(ctx context.Context, reference string, expectedType domainsecret.Type) (domainsecret.Spec, error) {
	return f.spec, f.err
}
func (f *fakeBackend) ValidateReference(reference string) bool { return true }
func (f *fakeBackend) HealthCheck(ctx context.Context) error   { return nil }

type fakeAuditStore struct {
	storage.AuditStore
	recorded []auditdomain.Event
}

func (f *fakeAuditStore) RecordEvent(ctx context.Context, e auditdomain.Event) (auditdomain.Event, error) {
	f.recorded = append(f.recorded, e)
	return e, nil
}

func TestResolveDispatchesToRegisteredBackend(t *testing.T) {
	auditStore := &fakeAuditStore{}
	router := New(audit.New(auditStore))
	router.Register(domainsecret.SourceDatabase, &fakeBackend{spec: domainsecret.Spec{Type: domainsecret.TypeGeneric, GenericValue: "shh"}})

	spec, err := router.Resolve(context.Background(), audit.ActorContext{}, domainsecret.Secret{
		ID: "sec-1", Name: "db-password", SecretType: domainsecret.TypeGeneric, Source: domainsecret.SourceDatabase,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if spec.GenericValue != "shh" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if len(auditStore.recorded) != 1 || auditStore.recorded[0].Action != "secrets.get" {
		t.Fatalf("expected a secrets.get audit event, got %+v", auditStore.recorded)
	}
	if _, ok := auditStore.recorded[0].NewConfiguration["value"]; ok {
		t.Fatalf("audit event must never carry the secret payload")
	}
}

func TestResolveFailsWhenNoBackendRegistered(t *testing.T) {
	router := New(audit.New(&fakeAuditStore{}))
	_, err := router.Resolve(context.Background(), audit.ActorContext{}, domainsecret.Secret{
		ID: "sec-1", Source: domainsecret.SourceVault,
	})
	if err == nil {
		t.Fatalf("expected an error when no backend is registered for the source")
	}
}

func TestResolveRecordsAuditEventOnBackendError(t *testing.T) {
	auditStore := &fakeAuditStore{}
	router := New(audit.New(auditStore))
	router.Register(domainsecret.SourceDatabase, &fakeBackend{err: errBoom})

	_, err := router.Resolve(context.Background(), audit.ActorContext{}, domainsecret.Secret{
		ID: "sec-1", Source: domainsecret.SourceDatabase,
	})
	if err == nil {
		t.Fatalf("expected backend error to propagate")
	}
	if len(auditStore.recorded) != 1 || auditStore.recorded[0].NewConfiguration["outcome"] != "error" {
		t.Fatalf("expected an error-outcome audit event, got %+v", auditStore.recorded)
	}
}

type fakeErrT string

func (e fakeErrT) Error() string { return string(e) }

const errBoom = fakeErrT("boom")
