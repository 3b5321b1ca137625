// Package config provides environment-variable driven configuration
// loading for the control plane. The generic env/CSV/byte-size/duration
// parsing helpers follow the same shape used throughout this codebase;
// TEE secret-injection and blockchain-chain-config helpers found in
// similar loaders don't apply to this domain and are left out.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the control plane needs.
type Config struct {
	Env string

	DatabaseURL      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	HTTPPort  int
	LogLevel  string
	LogFormat string

	EncryptionKeyVersion string
	EncryptionKeys       map[string][]byte // keyVersion -> 32-byte AES-256 key

	SessionJWTSecret string
	SessionTTL       time.Duration

	SecretBackendVaultAddr        string
	SecretBackendVaultToken       string
	SecretBackendVaultNamespace   string
	SecretBackendVaultMountPath   string
	WasmMaxBinarySize             int64
	SuppressBootstrapBanner       bool
	Timeouts                      Timeouts
}

// Timeouts holds the default dial/request timeouts for external dependencies.
type Timeouts struct {
	Database              time.Duration
	SecretBackendConnect   time.Duration
	SecretBackendRequest   time.Duration
	ProxyAdminConnect      time.Duration
	ProxyAdminRequest      time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Database:             5 * time.Second,
		SecretBackendConnect: 2 * time.Second,
		SecretBackendRequest: 5 * time.Second,
		ProxyAdminConnect:    2 * time.Second,
		ProxyAdminRequest:    5 * time.Second,
	}
}

// Load reads configuration from the environment, optionally preceded by a
// ".env" file for local development (ignored if absent).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                  GetEnv("APP_ENV", "development"),
		DatabaseURL:          GetEnv("DATABASE_URL", ""),
		DBMaxConnections:     GetEnvInt("DB_MAX_CONNECTIONS", 20),
		DBIdleTimeout:        ParseDurationOrDefault(os.Getenv("DB_IDLE_TIMEOUT"), 5*time.Minute),
		HTTPPort:             GetEnvInt("HTTP_PORT", 8080),
		LogLevel:             GetEnv("LOG_LEVEL", "info"),
		LogFormat:            GetEnv("LOG_FORMAT", "json"),
		EncryptionKeyVersion: GetEnv("ENCRYPTION_KEY_VERSION", "v1"),
		SessionJWTSecret:     GetEnv("SESSION_JWT_SECRET", ""),
		SessionTTL:           ParseDurationOrDefault(os.Getenv("SESSION_TTL"), 24*time.Hour),

		SecretBackendVaultAddr:      GetEnv("VAULT_ADDR", ""),
		SecretBackendVaultToken:     GetEnv("VAULT_TOKEN", ""),
		SecretBackendVaultNamespace: GetEnv("VAULT_NAMESPACE", ""),
		SecretBackendVaultMountPath: GetEnv("VAULT_KV_MOUNT_PATH", "secret"),

		SuppressBootstrapBanner: GetEnvBool("SUPPRESS_BOOTSTRAP_BANNER", false),
		Timeouts:                DefaultTimeouts(),
	}

	wasmCap, err := ParseByteSize(GetEnv("WASM_MAX_BINARY_SIZE", "10MiB"))
	if err != nil {
		return nil, fmt.Errorf("invalid WASM_MAX_BINARY_SIZE: %w", err)
	}
	cfg.WasmMaxBinarySize = wasmCap

	keys, err := loadEncryptionKeys()
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKeys = keys

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if _, ok := cfg.EncryptionKeys[cfg.EncryptionKeyVersion]; !ok {
		return nil, fmt.Errorf("ENCRYPTION_KEY_VERSION %q has no matching key in ENCRYPTION_KEYS", cfg.EncryptionKeyVersion)
	}

	return cfg, nil
}

// loadEncryptionKeys parses ENCRYPTION_KEYS="v1:hex...,v2:hex..." into a
// keyVersion -> raw key map, so that decrypt can tolerate any historically
// valid key while encrypt always uses the current one.
func loadEncryptionKeys() (map[string][]byte, error) {
	raw := os.Getenv("ENCRYPTION_KEYS")
	if raw == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEYS is required (format \"version:hexkey,version:hexkey\")")
	}
	keys := make(map[string][]byte)
	for _, entry := range SplitAndTrimCSV(raw) {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid ENCRYPTION_KEYS entry %q", entry)
		}
		version, hexKey := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		key, err := decodeHexKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid key for version %s: %w", version, err)
		}
		keys[version] = key
	}
	return keys, nil
}

func decodeHexKey(hexKey string) ([]byte, error) {
	if len(hexKey) != 64 {
		return nil, fmt.Errorf("expected 64 hex characters (32 bytes) for AES-256, got %d chars", len(hexKey))
	}
	out := make([]byte, 32)
	for i := 0; i < 32; i++ {
		b, err := strconv.ParseUint(hexKey[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

// GetEnv retrieves an environment variable with an optional default.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool accepts "true", "1", "yes", "y" (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	lower := strings.ToLower(val)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "y"
}

// GetEnvInt retrieves an integer environment variable with a default.
func GetEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// SplitAndTrimCSV splits a CSV string and trims each part, dropping empties.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ParseByteSize parses a size string like "10MiB", "512KB" into bytes.
func ParseByteSize(raw string) (int64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("empty size")
	}

	type suffix struct {
		value      string
		multiplier int64
	}
	suffixes := []suffix{
		{"gib", 1024 * 1024 * 1024}, {"gb", 1024 * 1024 * 1024}, {"g", 1024 * 1024 * 1024},
		{"mib", 1024 * 1024}, {"mb", 1024 * 1024}, {"m", 1024 * 1024},
		{"kib", 1024}, {"kb", 1024}, {"k", 1024},
		{"b", 1},
	}

	for _, entry := range suffixes {
		if !strings.HasSuffix(value, entry.value) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(value, entry.value))
		if num == "" {
			return 0, fmt.Errorf("missing size value")
		}
		parsed, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, err
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("size must be positive")
		}
		return parsed * entry.multiplier, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return parsed, nil
}

// ParseDurationOrDefault parses a duration string or returns the default.
func ParseDurationOrDefault(raw string, defaultDuration time.Duration) time.Duration {
	if raw == "" {
		return defaultDuration
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	return defaultDuration
}
