package audit

import (
	"context"
	"testing"

	"github.com/flowplane/controlplane/internal/app/domain/audit"
	"github.com/flowplane/controlplane/internal/app/storage"
)

type fakeAuditStore struct {
	storage.AuditStore
	recorded []audit.Event
}

func (f *fakeAuditStore) RecordEvent(ctx context.Context, e audit.Event) (audit.Event, error) {
	e.ID = int64(len(f.recorded) + 1)
	f.recorded = append(f.recorded, e)
	return e, nil
}

func (f *fakeAuditStore) ListEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	return f.recorded, nil
}

func TestRecordSecretsEventNeverCarriesSecretValue(t *testing.T) {
	store := &fakeAuditStore{}
	svc := New(store)

	err := svc.RecordSecretsEvent(context.Background(), ActorContext{UserID: "user-1"}, "sec-1", "db-password", "rotate",
		map[string]interface{}{"backend": "database", "version": 2})
	if err != nil {
		t.Fatalf("RecordSecretsEvent() error = %v", err)
	}

	if len(store.recorded) != 1 {
		t.Fatalf("recorded = %d, want 1", len(store.recorded))
	}
	e := store.recorded[0]
	if e.ResourceType != "secret" || e.Action != "rotate" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if _, ok := e.NewConfiguration["value"]; ok {
		t.Fatalf("audit event must never carry the secret value")
	}
}

func TestRecordPlatformEventCapturesBeforeAndAfter(t *testing.T) {
	store := &fakeAuditStore{}
	svc := New(store)

	old := map[string]interface{}{"version": 1}
	updated := map[string]interface{}{"version": 2}
	err := svc.RecordPlatformEvent(context.Background(), ActorContext{UserID: "user-1"}, "cluster", "cl-1", "payments", "update", old, updated)
	if err != nil {
		t.Fatalf("RecordPlatformEvent() error = %v", err)
	}

	e := store.recorded[0]
	if e.OldConfiguration["version"] != 1 || e.NewConfiguration["version"] != 2 {
		t.Fatalf("expected before/after configuration captured, got %+v", e)
	}
}

func TestQueryDelegatesToStore(t *testing.T) {
	store := &fakeAuditStore{}
	svc := New(store)
	_ = svc.RecordAuthEvent(context.Background(), ActorContext{UserID: "user-1"}, "login", "user-1", "user-1")

	events, err := svc.Query(context.Background(), audit.Filter{Limit: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}
