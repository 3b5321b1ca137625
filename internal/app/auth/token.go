package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/domain/identity"
	"github.com/flowplane/controlplane/internal/app/storage"
)

const (
	patPrefix   = "fp_pat_"
	setupPrefix = "fp_setup_"

	// DefaultSetupTokenTTL is how long a freshly issued setup token remains
	// valid if the caller doesn't set an explicit expiry.
	DefaultSetupTokenTTL = 7 * 24 * time.Hour
	// DefaultSetupTokenMaxUsage is the usage budget of a setup token when
	// the caller doesn't request a larger one.
	DefaultSetupTokenMaxUsage = 1
)

// AuthContext is the authenticated identity resolved from a presented
// token, carried through the request for authorization decisions and
// audit attribution.
type AuthContext struct {
	TokenID string
	Name    string
	Scopes  []string
}

// Authenticator validates presented `fp_pat_<id>.<secret>` and
// `fp_setup_<id>.<secret>` tokens against storage.TokenStore.
type Authenticator struct {
	tokens storage.TokenStore
}

func NewAuthenticator(tokens storage.TokenStore) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// splitToken parses "fp_pat_<id>.<secret>" or "fp_setup_<id>.<secret>" into
// its id and secret segments. The id is everything between the prefix and
// the first '.'; the secret is everything after it, so secrets containing
// '.' round-trip correctly.
func splitToken(presented string) (prefix, id, secret string, ok bool) {
	for _, p := range []string{patPrefix, setupPrefix} {
		if !strings.HasPrefix(presented, p) {
			continue
		}
		rest := presented[len(p):]
		dot := strings.IndexByte(rest, '.')
		if dot <= 0 || dot == len(rest)-1 {
			return "", "", "", false
		}
		return p, rest[:dot], rest[dot+1:], true
	}
	return "", "", "", false
}

// Authenticate validates a presented token string and returns the
// resolved AuthContext. Setup tokens are accepted here too: the caller
// distinguishes setup-only operations by checking token.IsSetupToken via
// AuthenticateSetup, or by the scope set itself.
func (a *Authenticator) Authenticate(ctx context.Context, presented string) (AuthContext, error) {
	_, id, secret, ok := splitToken(presented)
	if !ok {
		return AuthContext{}, apperrors.NewUnauthenticatedError("malformed token")
	}

	tok, err := a.tokens.GetToken(ctx, id)
	if err != nil {
		return AuthContext{}, apperrors.NewUnauthenticatedError("invalid token")
	}

	if tok.Status != identity.TokenActive {
		return AuthContext{}, apperrors.NewUnauthenticatedError("token is not active")
	}
	if tok.ExpiresAt != nil && !tok.ExpiresAt.After(time.Now()) {
		return AuthContext{}, apperrors.NewUnauthenticatedError("token has expired")
	}
	if !VerifySecret(secret, tok.TokenHash) {
		return AuthContext{}, apperrors.NewUnauthenticatedError("invalid token")
	}

	if tok.IsSetupToken {
		if tok.MaxUsageCount != nil && tok.UsageCount >= *tok.MaxUsageCount {
			return AuthContext{}, apperrors.NewUnauthenticatedError("setup token usage limit reached")
		}
		if _, err := a.tokens.IncrementUsage(ctx, tok.ID); err != nil {
			return AuthContext{}, fmt.Errorf("auth: incrementing setup token usage: %w", err)
		}
	} else {
		// Best-effort: a failed last-used update never fails the request.
		_ = a.tokens.TouchLastUsed(ctx, tok.ID)
	}

	scopeList, err := a.tokens.GetTokenScopes(ctx, tok.ID)
	if err != nil {
		return AuthContext{}, fmt.Errorf("auth: loading token scopes: %w", err)
	}

	return AuthContext{TokenID: tok.ID, Name: tok.Name, Scopes: scopeList}, nil
}

// IssueSetupToken creates a new setup token with the given scopes, default
// usage/expiry unless overridden by maxUsage/ttl (zero values fall back to
// the package defaults).
func IssueSetupToken(ctx context.Context, tokens storage.TokenStore, name string, scopeList []string, maxUsage int, ttl time.Duration) (identity.PersonalAccessToken, string, error) {
	if maxUsage <= 0 {
		maxUsage = DefaultSetupTokenMaxUsage
	}
	if ttl <= 0 {
		ttl = DefaultSetupTokenTTL
	}
	return issueToken(ctx, tokens, name, scopeList, true, &maxUsage, ttl)
}

// IssuePersonalAccessToken creates a non-expiring (unless ttl > 0) token
// for long-lived API access.
func IssuePersonalAccessToken(ctx context.Context, tokens storage.TokenStore, name string, scopeList []string, ttl time.Duration) (identity.PersonalAccessToken, string, error) {
	return issueToken(ctx, tokens, name, scopeList, false, nil, ttl)
}

func issueToken(ctx context.Context, tokens storage.TokenStore, name string, scopeList []string, isSetup bool, maxUsage *int, ttl time.Duration) (identity.PersonalAccessToken, string, error) {
	secret, err := randomSecret()
	if err != nil {
		return identity.PersonalAccessToken{}, "", err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return identity.PersonalAccessToken{}, "", err
	}

	tok := identity.PersonalAccessToken{
		Name:          name,
		TokenHash:     hash,
		Status:        identity.TokenActive,
		IsSetupToken:  isSetup,
		MaxUsageCount: maxUsage,
	}
	if ttl > 0 {
		expiresAt := time.Now().Add(ttl)
		tok.ExpiresAt = &expiresAt
	}

	created, err := tokens.CreateToken(ctx, tok, scopeList)
	if err != nil {
		return identity.PersonalAccessToken{}, "", err
	}

	prefix := patPrefix
	if isSetup {
		prefix = setupPrefix
	}
	presented := prefix + created.ID + "." + secret
	return created, presented, nil
}
