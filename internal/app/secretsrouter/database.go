package secretsrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/crypto"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// DatabaseBackend resolves secrets stored encrypted in this process's own
// database, decrypting through crypto.Service.
type DatabaseBackend struct {
	store      storage.SecretStore
	encryption *crypto.Service
}

func NewDatabaseBackend(store storage.SecretStore, encryption *crypto.Service) *DatabaseBackend {
	return &DatabaseBackend{store: store, encryption: encryption}
}

// ValidateReference accepts an internal secret id or a "team/name" pair.
func (b *DatabaseBackend) ValidateReference(reference string) bool {
	return reference != ""
}

func (b *DatabaseBackend) HealthCheck(ctx context.Context) error { return nil }

func (b *DatabaseBackend) Fetch(ctx context.Context, reference string, expectedType domainsecret.Type) (domainsecret.Spec, error) {
	s, err := b.lookup(ctx, reference)
	if err != nil {
		return domainsecret.Spec{}, err
	}
	if s.SecretType != expectedType {
		return domainsecret.Spec{}, apperrors.NewValidationError(
			fmt.Sprintf("secret %s has type %s, expected %s", reference, s.SecretType, expectedType), "secret_type")
	}

	plaintext, err := b.encryption.Decrypt(s.ConfigurationEncrypted, s.Nonce, s.EncryptionKeyID)
	if err != nil {
		return domainsecret.Spec{}, fmt.Errorf("secretsrouter: decrypting %s: %w", reference, err)
	}

	var spec domainsecret.Spec
	if err := json.Unmarshal(plaintext, &spec); err != nil {
		return domainsecret.Spec{}, fmt.Errorf("secretsrouter: decoding spec for %s: %w", reference, err)
	}
	return spec, nil
}

func (b *DatabaseBackend) lookup(ctx context.Context, reference string) (domainsecret.Secret, error) {
	if team, name, ok := strings.Cut(reference, "/"); ok {
		s, err := b.store.GetSecretByName(ctx, team, name)
		if err != nil {
			return domainsecret.Secret{}, apperrors.NewNotFoundError("secret", reference)
		}
		return s, nil
	}
	s, err := b.store.GetSecret(ctx, reference)
	if err != nil {
		return domainsecret.Secret{}, apperrors.NewNotFoundError("secret", reference)
	}
	return s, nil
}
