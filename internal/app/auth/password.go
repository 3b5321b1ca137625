// Package auth implements credential hashing, personal-access-token and
// setup-token authentication, bootstrap seeding, and session issuance.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2 parameters. time=1, memory=64MiB, threads=4, keyLen=32 match the
// RFC 9106 "low memory" recommendation; adequate for an API control plane
// that hashes on login/token-presentation, not a bulk KDF workload.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashSecret hashes a password or token secret segment with Argon2id under
// a freshly generated salt, encoding the parameters into the stored string
// so verification never depends on process-wide constants staying fixed.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}
	hash := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifySecret checks secret against an encoded hash produced by
// HashSecret, in constant time. It returns false (never an error) on any
// malformed-encoding input, so a corrupt stored hash fails closed.
func VerifySecret(secret, encoded string) bool {
	params, salt, hash, ok := parseEncodedHash(encoded)
	if !ok {
		return false
	}
	candidate := argon2.IDKey([]byte(secret), salt, params.time, params.memory, params.threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseEncodedHash(encoded string) (argonParams, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argonParams{}, nil, nil, false
	}
	var params argonParams
	var m, t, p uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return argonParams{}, nil, nil, false
	}
	params.memory, params.time, params.threads = m, t, uint8(p)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argonParams{}, nil, nil, false
	}
	return params, salt, hash, true
}
