package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/identity"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

// Store implements storage.Store backed by PostgreSQL. It embeds
// storage.DBProvider so every method resolves either the base pool or a
// transaction embedded in ctx by DBProvider.WithTx.
type Store struct {
	storage.DBProvider
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{DBProvider: storage.DBProvider{DB: db}}
}

func (s *Store) VirtualHostFilters() storage.AttachmentStore {
	return &attachmentStore{db: &s.DBProvider, table: "virtual_host_filters", scopeCol: "virtual_host_id"}
}

func (s *Store) RouteFilters() storage.AttachmentStore {
	return &attachmentStore{db: &s.DBProvider, table: "route_filters", scopeCol: "route_rule_id"}
}

func (s *Store) ListenerFilters() storage.AttachmentStore {
	return &attachmentStore{db: &s.DBProvider, table: "listener_filters", scopeCol: "listener_id"}
}

// --- OrganizationStore -------------------------------------------------

func (s *Store) CreateOrganization(ctx context.Context, org identity.Organization) (identity.Organization, error) {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO organizations (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.Status, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return identity.Organization{}, err
	}
	return org, nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (identity.Organization, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at FROM organizations WHERE id = $1
	`, id)
	return scanOrganization(row)
}

func (s *Store) GetOrganizationByName(ctx context.Context, name string) (identity.Organization, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at FROM organizations WHERE name = $1
	`, name)
	return scanOrganization(row)
}

func (s *Store) UpdateOrganization(ctx context.Context, org identity.Organization) (identity.Organization, error) {
	org.UpdatedAt = time.Now().UTC()
	result, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE organizations SET name = $2, status = $3, updated_at = $4 WHERE id = $1
	`, org.ID, org.Name, org.Status, org.UpdatedAt)
	if err != nil {
		return identity.Organization{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return identity.Organization{}, sql.ErrNoRows
	}
	return org, nil
}

func (s *Store) ListOrganizations(ctx context.Context, p storage.Pagination) ([]identity.Organization, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, name, status, created_at, updated_at FROM organizations
		ORDER BY created_at LIMIT $1 OFFSET $2
	`, storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (identity.Organization, error) {
	var org identity.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Status, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return identity.Organization{}, err
	}
	return org, nil
}

// --- OrgMembership -------------------------------------------------------

func (s *Store) CreateMembership(ctx context.Context, m identity.OrgMembership) (identity.OrgMembership, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO org_memberships (id, org_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.OrgID, m.UserID, m.Role, m.CreatedAt)
	if err != nil {
		return identity.OrgMembership{}, err
	}
	return m, nil
}

// UpdateMembershipRole locks the membership row and, if demoting the last
// remaining owner, refuses with a caller-visible conflict instead of
// leaving the organization ownerless.
func (s *Store) UpdateMembershipRole(ctx context.Context, membershipID string, role identity.OrgRole) (identity.OrgMembership, error) {
	q := s.Querier(ctx)
	var m identity.OrgMembership
	row := q.QueryRowContext(ctx, `
		SELECT id, org_id, user_id, role, created_at FROM org_memberships WHERE id = $1 FOR UPDATE
	`, membershipID)
	if err := row.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
		return identity.OrgMembership{}, err
	}

	if m.Role == identity.RoleOwner && role != identity.RoleOwner {
		owners, err := s.CountOwners(ctx, m.OrgID)
		if err != nil {
			return identity.OrgMembership{}, err
		}
		if owners <= 1 {
			return identity.OrgMembership{}, storage.ErrLastOwner
		}
	}

	if _, err := q.ExecContext(ctx, `UPDATE org_memberships SET role = $2 WHERE id = $1`, membershipID, role); err != nil {
		return identity.OrgMembership{}, err
	}
	m.Role = role
	return m, nil
}

func (s *Store) DeleteMembership(ctx context.Context, membershipID string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM org_memberships WHERE id = $1`, membershipID)
	return err
}

func (s *Store) ListMembershipsByOrg(ctx context.Context, orgID string) ([]identity.OrgMembership, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, org_id, user_id, role, created_at FROM org_memberships WHERE org_id = $1
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.OrgMembership
	for rows.Next() {
		var m identity.OrgMembership
		if err := rows.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CountOwners(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT count(*) FROM org_memberships WHERE org_id = $1 AND role = $2
	`, orgID, identity.RoleOwner).Scan(&n)
	return n, err
}
