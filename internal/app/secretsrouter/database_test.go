package secretsrouter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flowplane/controlplane/internal/app/crypto"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/storage"
)

type fakeSecretStore struct {
	storage.SecretStore
	byName map[string]domainsecret.Secret
	byID   map[string]domainsecret.Secret
}

func (f *fakeSecretStore) GetSecretByName(ctx context.Context, team, name string) (domainsecret.Secret, error) {
	s, ok := f.byName[team+"/"+name]
	if !ok {
		return domainsecret.Secret{}, errBoom
	}
	return s, nil
}

func (f *fakeSecretStore) GetSecret(ctx context.Context, id string) (domainsecret.Secret, error) {
	s, ok := f.byID[id]
	if !ok {
		return domainsecret.Secret{}, errBoom
	}
	return s, nil
}

func newEncryptedSecret(t *testing.T, enc *crypto.Service, spec domainsecret.Spec) domainsecret.Secret {
	t.Helper()
	plaintext, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	ciphertext, nonce, version, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return domainsecret.Secret{
		ID:                     "sec-1",
		Team:                   "payments",
		Name:                   "db-password",
		SecretType:             spec.Type,
		ConfigurationEncrypted: ciphertext,
		Nonce:                  nonce,
		EncryptionKeyID:        version,
		Source:                 domainsecret.SourceDatabase,
	}
}

func testEncryption(t *testing.T) *crypto.Service {
	t.Helper()
	enc, err := crypto.NewService(map[string][]byte{"v1": make([]byte, 32)}, "v1")
	if err != nil {
		t.Fatalf("crypto.NewService() error = %v", err)
	}
	return enc
}

func TestDatabaseBackendFetchByTeamAndName(t *testing.T) {
	enc := testEncryption(t)
	s := newEncryptedSecret(t, enc, domainsecret.Spec{Type: domainsecret.TypeGeneric, GenericValue: "hunter2"})

	store := &fakeSecretStore{byName: map[string]domainsecret.Secret{"payments/db-password": s}}
	backend := NewDatabaseBackend(store, enc)

	spec, err := backend.Fetch(context.Background(), "payments/db-password", domainsecret.TypeGeneric)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if spec.GenericValue != "hunter2" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestDatabaseBackendFetchRejectsTypeMismatch(t *testing.T) {
	enc := testEncryption(t)
	s := newEncryptedSecret(t, enc, domainsecret.Spec{Type: domainsecret.TypeGeneric, GenericValue: "hunter2"})

	store := &fakeSecretStore{byID: map[string]domainsecret.Secret{"sec-1": s}}
	backend := NewDatabaseBackend(store, enc)

	if _, err := backend.Fetch(context.Background(), "sec-1", domainsecret.TypeTLSCertificate); err == nil {
		t.Fatalf("expected a type mismatch to be rejected")
	}
}

func TestDatabaseBackendFetchMissingReferenceIsNotFound(t *testing.T) {
	enc := testEncryption(t)
	backend := NewDatabaseBackend(&fakeSecretStore{byID: map[string]domainsecret.Secret{}}, enc)

	if _, err := backend.Fetch(context.Background(), "missing", domainsecret.TypeGeneric); err == nil {
		t.Fatalf("expected a missing reference to fail")
	}
}
