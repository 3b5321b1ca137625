package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/identity"
	"github.com/flowplane/controlplane/internal/app/scopes"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

// --- TeamStore -----------------------------------------------------------

// CreateTeam allocates EnvoyAdminPort under the row lock implied by
// "SELECT ... FOR UPDATE" on the organizations row, so two concurrent team
// creations in the same org never collide on the same port.
func (s *Store) CreateTeam(ctx context.Context, team identity.Team, basePort int) (identity.Team, error) {
	q := s.Querier(ctx)

	var maxPort sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT max(envoy_admin_port) FROM teams WHERE org_id = $1 FOR UPDATE`, team.OrgID).Scan(&maxPort); err != nil && err != sql.ErrNoRows {
		return identity.Team{}, err
	}
	if maxPort.Valid {
		team.EnvoyAdminPort = int(maxPort.Int64) + 1
	} else {
		team.EnvoyAdminPort = basePort
	}

	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	team.CreatedAt, team.UpdatedAt = now, now

	_, err := q.ExecContext(ctx, `
		INSERT INTO teams (id, name, display_name, org_id, status, envoy_admin_port, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, team.ID, team.Name, team.DisplayName, team.OrgID, team.Status, team.EnvoyAdminPort, team.CreatedAt, team.UpdatedAt)
	if err != nil {
		return identity.Team{}, err
	}
	return team, nil
}

func scanTeam(row rowScanner) (identity.Team, error) {
	var t identity.Team
	if err := row.Scan(&t.ID, &t.Name, &t.DisplayName, &t.OrgID, &t.Status, &t.EnvoyAdminPort, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return identity.Team{}, err
	}
	return t, nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (identity.Team, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, display_name, org_id, status, envoy_admin_port, created_at, updated_at FROM teams WHERE id = $1
	`, id)
	return scanTeam(row)
}

func (s *Store) GetTeamByName(ctx context.Context, name string) (identity.Team, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, display_name, org_id, status, envoy_admin_port, created_at, updated_at FROM teams WHERE name = $1
	`, name)
	return scanTeam(row)
}

func (s *Store) UpdateTeam(ctx context.Context, team identity.Team) (identity.Team, error) {
	team.UpdatedAt = time.Now().UTC()
	result, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE teams SET name = $2, display_name = $3, status = $4, updated_at = $5 WHERE id = $1
	`, team.ID, team.Name, team.DisplayName, team.Status, team.UpdatedAt)
	if err != nil {
		return identity.Team{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return identity.Team{}, sql.ErrNoRows
	}
	return team, nil
}

func (s *Store) ListTeams(ctx context.Context, p storage.Pagination) ([]identity.Team, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, name, display_name, org_id, status, envoy_admin_port, created_at, updated_at FROM teams
		ORDER BY created_at LIMIT $1 OFFSET $2
	`, storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTeamMembership(ctx context.Context, m identity.TeamMembership) (identity.TeamMembership, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	scopesJSON, err := marshalStrings(m.Scopes)
	if err != nil {
		return identity.TeamMembership{}, err
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO team_memberships (id, user_id, team, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.UserID, m.Team, scopesJSON, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return identity.TeamMembership{}, err
	}
	return m, nil
}

func (s *Store) ListTeamMembershipsByUser(ctx context.Context, userID string) ([]identity.TeamMembership, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, user_id, team, scopes, created_at, updated_at FROM team_memberships WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.TeamMembership
	for rows.Next() {
		var m identity.TeamMembership
		var scopesRaw []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.Team, &scopesRaw, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		_ = jsonUnmarshalStrings(scopesRaw, &m.Scopes)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- UserStore -------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u identity.User) (identity.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, status, is_admin, org_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Status, u.IsAdmin, u.OrgID, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func scanUser(row rowScanner) (identity.User, error) {
	var u identity.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Status, &u.IsAdmin, &u.OrgID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (identity.User, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, status, is_admin, org_id, created_at, updated_at FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, status, is_admin, org_id, created_at, updated_at FROM users WHERE email = $1
	`, email)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, u identity.User) (identity.User, error) {
	u.UpdatedAt = time.Now().UTC()
	result, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE users SET email = $2, password_hash = $3, name = $4, status = $5, is_admin = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Status, u.IsAdmin, u.UpdatedAt)
	if err != nil {
		return identity.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return identity.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, p storage.Pagination) ([]identity.User, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, email, password_hash, name, status, is_admin, org_id, created_at, updated_at FROM users
		ORDER BY created_at LIMIT $1 OFFSET $2
	`, storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- TokenStore --------------------------------------------------------

func (s *Store) CreateToken(ctx context.Context, t identity.PersonalAccessToken, scopeList []string) (identity.PersonalAccessToken, error) {
	return t, s.WithTx(ctx, func(ctx context.Context) error {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = now, now

		_, err := s.Querier(ctx).ExecContext(ctx, `
			INSERT INTO personal_access_tokens
				(id, name, description, token_hash, status, expires_at, last_used_at, created_by, is_setup_token, max_usage_count, usage_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, t.ID, t.Name, t.Description, t.TokenHash, t.Status, nullTime(t.ExpiresAt), nullTime(t.LastUsedAt),
			t.CreatedBy, t.IsSetupToken, nullInt(t.MaxUsageCount), t.UsageCount, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return err
		}
		for _, scope := range scopeList {
			if _, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO token_scopes (token_id, scope) VALUES ($1, $2)
			`, t.ID, scope); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetToken(ctx context.Context, id string) (identity.PersonalAccessToken, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, description, token_hash, status, expires_at, last_used_at, created_by, is_setup_token, max_usage_count, usage_count, created_at, updated_at
		FROM personal_access_tokens WHERE id = $1
	`, id)

	var (
		t          identity.PersonalAccessToken
		expiresAt  sql.NullTime
		lastUsedAt sql.NullTime
		maxUsage   sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.TokenHash, &t.Status, &expiresAt, &lastUsedAt,
		&t.CreatedBy, &t.IsSetupToken, &maxUsage, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return identity.PersonalAccessToken{}, err
	}
	t.ExpiresAt = timePtr(expiresAt)
	t.LastUsedAt = timePtr(lastUsedAt)
	t.MaxUsageCount = intPtr(maxUsage)
	return t, nil
}

func (s *Store) GetTokenScopes(ctx context.Context, tokenID string) ([]string, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `SELECT scope FROM token_scopes WHERE token_id = $1`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sc string
		if err := rows.Scan(&sc); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTokenStatus(ctx context.Context, id string, status identity.TokenStatus) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE personal_access_tokens SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now().UTC())
	return err
}

func (s *Store) TouchLastUsed(ctx context.Context, id string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE personal_access_tokens SET last_used_at = $2 WHERE id = $1
	`, id, time.Now().UTC())
	return err
}

// IncrementUsage locks the token row so concurrent requests against a
// MaxUsageCount-bounded setup token cannot both observe the same count and
// both succeed past the cap.
func (s *Store) IncrementUsage(ctx context.Context, id string) (int, error) {
	var count int
	err := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE personal_access_tokens SET usage_count = usage_count + 1 WHERE id = $1 RETURNING usage_count
	`, id).Scan(&count)
	return count, err
}

func (s *Store) ExpireStaleTokens(ctx context.Context) (int, error) {
	result, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE personal_access_tokens SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $2
	`, identity.TokenExpired, time.Now().UTC(), identity.TokenActive)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *Store) CountActiveTokens(ctx context.Context) (int, error) {
	var n int
	err := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT count(*) FROM personal_access_tokens WHERE status = $1
	`, identity.TokenActive).Scan(&n)
	return n, err
}

func (s *Store) ListTokens(ctx context.Context, p storage.Pagination) ([]identity.PersonalAccessToken, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, name, description, token_hash, status, expires_at, last_used_at, created_by, is_setup_token, max_usage_count, usage_count, created_at, updated_at
		FROM personal_access_tokens ORDER BY created_at LIMIT $1 OFFSET $2
	`, storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.PersonalAccessToken
	for rows.Next() {
		var (
			t          identity.PersonalAccessToken
			expiresAt  sql.NullTime
			lastUsedAt sql.NullTime
			maxUsage   sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.TokenHash, &t.Status, &expiresAt, &lastUsedAt,
			&t.CreatedBy, &t.IsSetupToken, &maxUsage, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.ExpiresAt = timePtr(expiresAt)
		t.LastUsedAt = timePtr(lastUsedAt)
		t.MaxUsageCount = intPtr(maxUsage)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- InvitationStore -----------------------------------------------------

func (s *Store) CreateInvitation(ctx context.Context, inv identity.Invitation) (identity.Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inv.CreatedAt, inv.UpdatedAt = now, now

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO invitations (id, email, token_hash, org_id, role, expires_at, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, inv.ID, inv.Email, inv.TokenHash, inv.OrgID, inv.Role, inv.ExpiresAt, inv.Status, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return identity.Invitation{}, err
	}
	return inv, nil
}

func (s *Store) GetInvitation(ctx context.Context, id string) (identity.Invitation, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, email, token_hash, org_id, role, expires_at, status, created_by, created_at, updated_at
		FROM invitations WHERE id = $1
	`, id)
	var inv identity.Invitation
	if err := row.Scan(&inv.ID, &inv.Email, &inv.TokenHash, &inv.OrgID, &inv.Role, &inv.ExpiresAt, &inv.Status, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return identity.Invitation{}, err
	}
	return inv, nil
}

func (s *Store) UpdateInvitationStatus(ctx context.Context, id string, status identity.InvitationStatus) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE invitations SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now().UTC())
	return err
}

func (s *Store) ExpireStaleInvitations(ctx context.Context) (int, error) {
	result, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE invitations SET status = $1, updated_at = $2 WHERE status = $3 AND expires_at < $2
	`, identity.InvitationExpired, time.Now().UTC(), identity.InvitationPending)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// --- ScopeStore (loader for the scope registry) ---------------------------

func (s *Store) LoadEnabledScopes(ctx context.Context) ([]scopes.Definition, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT resource, action, ui_visible FROM scope_definitions WHERE enabled = true
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scopes.Definition
	for rows.Next() {
		var d scopes.Definition
		if err := rows.Scan(&d.Resource, &d.Action, &d.UIVisible); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
