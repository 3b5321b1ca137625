// Package audit provides the recording and query surface over the
// append-only audit log, wrapping storage.AuditStore with the three
// resource-family helpers the rest of the application calls into.
package audit

import (
	"context"

	"github.com/flowplane/controlplane/internal/app/domain/audit"
	"github.com/flowplane/controlplane/internal/app/storage"
)

type Service struct {
	store storage.AuditStore
}

func New(store storage.AuditStore) *Service {
	return &Service{store: store}
}

// ActorContext carries the caller identity fields every audit event
// records, pulled from the authenticated request.
type ActorContext struct {
	UserID    string
	ClientIP  string
	UserAgent string
}

func (s *Service) record(ctx context.Context, actor ActorContext, resourceType, resourceID, resourceName, action string, oldConfig, newConfig map[string]interface{}) error {
	e := audit.Event{
		ResourceType:     resourceType,
		Action:           action,
		OldConfiguration: oldConfig,
		NewConfiguration: newConfig,
	}
	if resourceID != "" {
		e.ResourceID = &resourceID
	}
	if resourceName != "" {
		e.ResourceName = &resourceName
	}
	if actor.UserID != "" {
		e.UserID = &actor.UserID
	}
	if actor.ClientIP != "" {
		e.ClientIP = &actor.ClientIP
	}
	if actor.UserAgent != "" {
		e.UserAgent = &actor.UserAgent
	}
	_, err := s.store.RecordEvent(ctx, e)
	return err
}

// RecordAuthEvent logs a session/token/membership lifecycle event: login,
// token issuance or revocation, role change, invitation acceptance.
func (s *Service) RecordAuthEvent(ctx context.Context, actor ActorContext, action, resourceID, resourceName string) error {
	return s.record(ctx, actor, "auth", resourceID, resourceName, action, nil, nil)
}

// RecordPlatformEvent logs a create/update/delete against an xDS or
// platform-API resource, capturing the before/after configuration so the
// change is fully reconstructable from the log.
func (s *Service) RecordPlatformEvent(ctx context.Context, actor ActorContext, resourceType, resourceID, resourceName, action string, oldConfig, newConfig map[string]interface{}) error {
	return s.record(ctx, actor, resourceType, resourceID, resourceName, action, oldConfig, newConfig)
}

// RecordSecretsEvent logs a secret get/set/rotate outcome. Callers must
// never pass the decrypted secret value in metadata — only the key, the
// operation, and non-sensitive details like backend and version.
func (s *Service) RecordSecretsEvent(ctx context.Context, actor ActorContext, secretID, secretName, operation string, metadata map[string]interface{}) error {
	return s.record(ctx, actor, "secret", secretID, secretName, operation, nil, metadata)
}

// Query lists audit events matching f, newest first.
func (s *Service) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	return s.store.ListEvents(ctx, f)
}
