// Package crypto implements AES-256-GCM encryption over secret payloads
// with versioned keys. Secrets must survive key rotation, so the service
// keeps a full key-set keyed by version string: encrypt always uses the
// current version, decrypt accepts any version still present in the set.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flowplane/controlplane/internal/app/apperrors"
)

const nonceSize = 12

var (
	// ErrKeyUnavailable means the key version referenced by a ciphertext
	// (or requested for encryption) is not present in the configured key-set.
	ErrKeyUnavailable = errors.New("crypto: encryption key unavailable")
	// ErrAuthenticationFailed means the GCM tag did not verify: the
	// ciphertext is corrupt or has been tampered with. Non-retriable.
	ErrAuthenticationFailed = errors.New("crypto: authentication failed")
)

// Service implements encrypt/decrypt against a versioned key-set. It is
// safe for concurrent use; the key-set is immutable after construction —
// rotation happens by restarting the process with an updated key-set.
type Service struct {
	currentVersion string
	aeads          map[string]cipher.AEAD
}

// NewService builds a Service from a keyVersion -> 32-byte AES-256 key map.
// currentVersion must be present in keys.
func NewService(keys map[string][]byte, currentVersion string) (*Service, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("crypto: at least one key is required")
	}
	aeads := make(map[string]cipher.AEAD, len(keys))
	for version, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("crypto: key version %s must be 32 bytes for AES-256, got %d", version, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: building cipher for version %s: %w", version, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("crypto: building GCM for version %s: %w", version, err)
		}
		aeads[version] = aead
	}
	if _, ok := aeads[currentVersion]; !ok {
		return nil, fmt.Errorf("crypto: current version %s has no matching key", currentVersion)
	}
	return &Service{currentVersion: currentVersion, aeads: aeads}, nil
}

// Encrypt seals plaintext under the current key version, returning the
// ciphertext, the CSPRNG-generated 12-byte nonce, and the key version used.
func (s *Service) Encrypt(plaintext []byte) (ciphertext, nonce []byte, keyVersion string, err error) {
	aead := s.aeads[s.currentVersion]
	nonce = make([]byte, nonceSize)
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, "", fmt.Errorf("crypto: generating nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, s.currentVersion, nil
}

// Decrypt opens ciphertext sealed under keyVersion. Any historically valid
// key version is accepted, not only the current one.
func (s *Service) Decrypt(ciphertext, nonce []byte, keyVersion string) ([]byte, error) {
	aead, ok := s.aeads[keyVersion]
	if !ok {
		return nil, ErrKeyUnavailable
	}
	if len(nonce) != nonceSize {
		return nil, apperrors.NewInternalError(fmt.Errorf("crypto: nonce must be %d bytes, got %d", nonceSize, len(nonce)))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// CurrentVersion reports the key version new encryptions will use.
func (s *Service) CurrentVersion() string { return s.currentVersion }
