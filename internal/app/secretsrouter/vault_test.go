package secretsrouter

import (
	"testing"

	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
)

func TestCoerceVaultDataInfersGenericFromExpectedType(t *testing.T) {
	spec, err := coerceVaultData(map[string]interface{}{"value": "top-secret"}, domainsecret.TypeGeneric)
	if err != nil {
		t.Fatalf("coerceVaultData() error = %v", err)
	}
	if spec.GenericValue != "top-secret" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestCoerceVaultDataHonorsEmbeddedType(t *testing.T) {
	data := map[string]interface{}{"type": "tls_certificate", "certificate_chain": "chain", "private_key": "key"}
	spec, err := coerceVaultData(data, domainsecret.TypeTLSCertificate)
	if err != nil {
		t.Fatalf("coerceVaultData() error = %v", err)
	}
	if spec.CertificateChain != "chain" || spec.PrivateKey != "key" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestCoerceVaultDataRejectsTypeMismatch(t *testing.T) {
	data := map[string]interface{}{"type": "generic", "value": "x"}
	if _, err := coerceVaultData(data, domainsecret.TypeTLSCertificate); err == nil {
		t.Fatalf("expected a type mismatch to be rejected")
	}
}

func TestValidateReferenceRejectsLeadingSlash(t *testing.T) {
	b := NewVaultBackend("http://vault:8200", "token", "secret", "", 0, 0)
	if b.ValidateReference("/leading-slash") {
		t.Fatalf("expected a reference with a leading slash to be rejected")
	}
	if !b.ValidateReference("team/name") {
		t.Fatalf("expected a plain path reference to be valid")
	}
}
