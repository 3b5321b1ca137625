package secretsrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
)

// VaultBackend resolves secrets from a KV v2 mount over Vault's HTTP API.
// No Vault client library is carried in this dependency set, so it speaks
// the documented KV v2 REST contract directly with net/http rather than
// import an SDK this codebase otherwise has no use for.
type VaultBackend struct {
	addr      string
	token     string
	mountPath string
	namespace string
	client    *http.Client
}

func NewVaultBackend(addr, token, mountPath, namespace string, connectTimeout, requestTimeout time.Duration) *VaultBackend {
	return &VaultBackend{
		addr:      strings.TrimRight(addr, "/"),
		token:     token,
		mountPath: strings.Trim(mountPath, "/"),
		namespace: namespace,
		client: &http.Client{
			Timeout: connectTimeout + requestTimeout,
		},
	}
}

func (b *VaultBackend) ValidateReference(reference string) bool {
	return reference != "" && !strings.HasPrefix(reference, "/")
}

type vaultKVv2Response struct {
	Data struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
}

func (b *VaultBackend) Fetch(ctx context.Context, reference string, expectedType domainsecret.Type) (domainsecret.Spec, error) {
	if !b.ValidateReference(reference) {
		return domainsecret.Spec{}, apperrors.NewValidationError("invalid vault reference", "reference")
	}

	url := fmt.Sprintf("%s/v1/%s/data/%s", b.addr, b.mountPath, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domainsecret.Spec{}, err
	}
	req.Header.Set("X-Vault-Token", b.token)
	if b.namespace != "" {
		req.Header.Set("X-Vault-Namespace", b.namespace)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return domainsecret.Spec{}, fmt.Errorf("secretsrouter: vault request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domainsecret.Spec{}, apperrors.NewNotFoundError("secret", reference)
	}
	if resp.StatusCode != http.StatusOK {
		return domainsecret.Spec{}, fmt.Errorf("secretsrouter: vault returned status %d for %s", resp.StatusCode, reference)
	}

	var decoded vaultKVv2Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domainsecret.Spec{}, fmt.Errorf("secretsrouter: decoding vault response: %w", err)
	}

	return coerceVaultData(decoded.Data.Data, expectedType)
}

// coerceVaultData builds a Spec from a KV v2 secret's key-value map. If
// the map itself carries a "type" field, the whole map is treated as a
// full Spec encoding; otherwise the fields are inferred from expectedType.
func coerceVaultData(data map[string]interface{}, expectedType domainsecret.Type) (domainsecret.Spec, error) {
	if _, ok := data["type"]; ok {
		raw, err := json.Marshal(data)
		if err != nil {
			return domainsecret.Spec{}, err
		}
		var spec domainsecret.Spec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return domainsecret.Spec{}, err
		}
		if spec.Type != expectedType {
			return domainsecret.Spec{}, apperrors.NewValidationError(
				fmt.Sprintf("vault secret has type %s, expected %s", spec.Type, expectedType), "secret_type")
		}
		return spec, nil
	}

	spec := domainsecret.Spec{Type: expectedType}
	switch expectedType {
	case domainsecret.TypeGeneric:
		spec.GenericValue = stringField(data, "value")
	case domainsecret.TypeTLSCertificate:
		spec.CertificateChain = stringField(data, "certificate_chain")
		spec.PrivateKey = stringField(data, "private_key")
		spec.Password = stringField(data, "password")
		spec.OCSPStaple = stringField(data, "ocsp_staple")
	case domainsecret.TypeValidationContext:
		spec.TrustedCA = stringField(data, "trusted_ca")
	case domainsecret.TypeSessionTicketKeys:
		if raw, ok := data["keys"].([]interface{}); ok {
			for _, k := range raw {
				if s, ok := k.(string); ok {
					spec.Keys = append(spec.Keys, s)
				}
			}
		}
	default:
		return domainsecret.Spec{}, apperrors.NewValidationError("unknown secret type "+string(expectedType), "secret_type")
	}
	return spec, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func (b *VaultBackend) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/sys/health", b.addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("secretsrouter: vault health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("secretsrouter: vault unhealthy, status %d", resp.StatusCode)
	}
	return nil
}
