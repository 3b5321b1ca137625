// Package secret holds the Secret entity and the Spec tagged-union
// representation used by the encryption service and the secret backend
// router: a team-scoped, typed secret with an optional external-backend
// reference.
package secret

import "time"

type Type string

const (
	TypeGeneric           Type = "generic"
	TypeTLSCertificate    Type = "tls_certificate"
	TypeValidationContext Type = "validation_context"
	TypeSessionTicketKeys Type = "session_ticket_keys"
)

type Source string

const (
	SourceDatabase Source = "database"
	SourceVault    Source = "vault"
)

// Secret is the database row. ConfigurationEncrypted/Nonce are empty when
// Backend is set — the payload is then resolved on demand from the
// external backend instead.
type Secret struct {
	ID                     string
	Team                   string
	Name                   string
	SecretType             Type
	Description            string
	ConfigurationEncrypted []byte
	EncryptionKeyID        string
	Nonce                  []byte
	Version                int
	Source                 Source
	ExpiresAt              *time.Time
	Backend                *string
	Reference              *string
	ReferenceVersion       *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Metadata is the public view of a secret without decrypted payload.
type Metadata struct {
	ID         string     `json:"id"`
	Team       string     `json:"team"`
	Name       string     `json:"name"`
	SecretType Type       `json:"secret_type"`
	Version    int        `json:"version"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s Secret) ToMetadata() Metadata {
	return Metadata{
		ID: s.ID, Team: s.Team, Name: s.Name, SecretType: s.SecretType,
		Version: s.Version, ExpiresAt: s.ExpiresAt, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

// Spec is the decrypted/resolved payload view of a secret: a tagged union
// over the four secret types. Only the fields relevant to Type are
// populated by backends.
type Spec struct {
	Type Type `json:"type"`

	GenericValue string `json:"generic_value,omitempty"`

	CertificateChain string `json:"certificate_chain,omitempty"`
	PrivateKey       string `json:"private_key,omitempty"`
	Password         string `json:"password,omitempty"`
	OCSPStaple       string `json:"ocsp_staple,omitempty"`

	TrustedCA      string   `json:"trusted_ca,omitempty"`
	VerifyCertHash []string `json:"verify_cert_hash,omitempty"`

	Keys []string `json:"keys,omitempty"`
}
