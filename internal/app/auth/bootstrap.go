package auth

import (
	"context"
	"fmt"

	"github.com/flowplane/controlplane/internal/app/audit"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// BootstrapScopes is the fixed privileged scope set seeded onto the first
// token when a fresh deployment has none. It grants unrestricted access so
// the operator can create teams, invite users, and mint narrower tokens
// before disabling it.
var BootstrapScopes = []string{"admin:all"}

// BootstrapTokenName is the display name given to the seeded token.
const BootstrapTokenName = "bootstrap"

// Bootstrap seeds a single personal access token when the store has zero
// tokens, recording a token.seeded audit event. The zero-token check and
// the insert happen inside the same transaction so concurrent process
// starts can't both seed a token.
//
// It returns the presented token string only when seeding actually
// occurred; an empty string means a token already existed and nothing was
// done.
func Bootstrap(ctx context.Context, store storage.Store, auditSvc *audit.Service) (string, error) {
	var presented string

	err := store.WithTx(ctx, func(ctx context.Context) error {
		count, err := store.CountActiveTokens(ctx)
		if err != nil {
			return fmt.Errorf("auth: counting active tokens: %w", err)
		}
		if count > 0 {
			return nil
		}

		_, p, err := IssuePersonalAccessToken(ctx, store, BootstrapTokenName, BootstrapScopes, 0)
		if err != nil {
			return fmt.Errorf("auth: seeding bootstrap token: %w", err)
		}
		presented = p
		return nil
	})
	if err != nil {
		return "", err
	}
	if presented == "" {
		return "", nil
	}

	if err := auditSvc.RecordAuthEvent(ctx, audit.ActorContext{}, "token.seeded", "", BootstrapTokenName); err != nil {
		return "", fmt.Errorf("auth: recording token.seeded event: %w", err)
	}
	return presented, nil
}
