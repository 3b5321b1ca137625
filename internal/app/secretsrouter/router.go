// Package secretsrouter dispatches a secret reference to the backend that
// owns it (database or Vault), returning a resolved secret.Spec and never
// the raw bytes outside that dispatch, and recording a secrets.get audit
// event for every fetch.
package secretsrouter

import (
	"context"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/audit"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
)

// Backend resolves a secret reference into its decrypted/decoded value.
type Backend interface {
	// Fetch resolves reference into a Spec matching expectedType, or a
	// Validation error if the resolved secret's type doesn't match.
	Fetch(ctx context.Context, reference string, expectedType domainsecret.Type) (domainsecret.Spec, error)
	ValidateReference(reference string) bool
	HealthCheck(ctx context.Context) error
}

// Router dispatches by secret.Source to the registered Backend.
type Router struct {
	backends map[domainsecret.Source]Backend
	audit    *audit.Service
}

func New(auditSvc *audit.Service) *Router {
	return &Router{backends: make(map[domainsecret.Source]Backend), audit: auditSvc}
}

// Register installs backend for source, overwriting any prior registration.
func (r *Router) Register(source domainsecret.Source, backend Backend) {
	r.backends[source] = backend
}

// Resolve fetches s's value through the backend its Source names,
// recording a secrets.get audit event that carries only the reference and
// outcome — never the decrypted payload.
func (r *Router) Resolve(ctx context.Context, actor audit.ActorContext, s domainsecret.Secret) (domainsecret.Spec, error) {
	backend, ok := r.backends[s.Source]
	if !ok {
		return domainsecret.Spec{}, apperrors.NewServiceUnavailableError("no backend registered for secret source " + string(s.Source))
	}

	reference := s.ID
	if s.Reference != nil {
		reference = *s.Reference
	}

	spec, err := backend.Fetch(ctx, reference, s.SecretType)

	metadata := map[string]interface{}{"backend": string(s.Source)}
	if err != nil {
		metadata["outcome"] = "error"
	} else {
		metadata["outcome"] = "ok"
	}
	_ = r.audit.RecordSecretsEvent(ctx, actor, s.ID, s.Name, "secrets.get", metadata)

	if err != nil {
		return domainsecret.Spec{}, err
	}
	return spec, nil
}

// HealthCheck reports the health of every registered backend, keyed by
// source.
func (r *Router) HealthCheck(ctx context.Context) map[domainsecret.Source]error {
	out := make(map[domainsecret.Source]error, len(r.backends))
	for source, backend := range r.backends {
		out[source] = backend.HealthCheck(ctx)
	}
	return out
}
