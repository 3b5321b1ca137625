package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

const secretColumns = `id, team, name, secret_type, description, configuration_encrypted, encryption_key_id, nonce, version, source, expires_at, backend, reference, reference_version, created_at, updated_at`

func (s *Store) CreateSecret(ctx context.Context, sec secret.Secret) (secret.Secret, error) {
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sec.CreatedAt, sec.UpdatedAt = now, now
	if sec.Version == 0 {
		sec.Version = 1
	}

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO secrets (`+secretColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, sec.ID, sec.Team, sec.Name, sec.SecretType, sec.Description, sec.ConfigurationEncrypted, sec.EncryptionKeyID,
		sec.Nonce, sec.Version, sec.Source, nullTime(sec.ExpiresAt), nullString(sec.Backend), nullString(sec.Reference),
		nullString(sec.ReferenceVersion), sec.CreatedAt, sec.UpdatedAt)
	if err != nil {
		return secret.Secret{}, err
	}
	return sec, nil
}

func scanSecret(row rowScanner) (secret.Secret, error) {
	var (
		sec              secret.Secret
		expiresAt        sql.NullTime
		backend          sql.NullString
		reference        sql.NullString
		referenceVersion sql.NullString
	)
	if err := row.Scan(&sec.ID, &sec.Team, &sec.Name, &sec.SecretType, &sec.Description, &sec.ConfigurationEncrypted,
		&sec.EncryptionKeyID, &sec.Nonce, &sec.Version, &sec.Source, &expiresAt, &backend, &reference, &referenceVersion,
		&sec.CreatedAt, &sec.UpdatedAt); err != nil {
		return secret.Secret{}, err
	}
	sec.ExpiresAt = timePtr(expiresAt)
	sec.Backend = stringPtr(backend)
	sec.Reference = stringPtr(reference)
	sec.ReferenceVersion = stringPtr(referenceVersion)
	return sec, nil
}

func (s *Store) GetSecret(ctx context.Context, id string) (secret.Secret, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+secretColumns+` FROM secrets WHERE id = $1`, id)
	return scanSecret(row)
}

func (s *Store) GetSecretByName(ctx context.Context, team, name string) (secret.Secret, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+secretColumns+` FROM secrets WHERE team = $1 AND name = $2`, team, name)
	return scanSecret(row)
}

func (s *Store) UpdateSecret(ctx context.Context, sec secret.Secret) (secret.Secret, error) {
	sec.UpdatedAt = time.Now().UTC()
	row := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE secrets
		SET configuration_encrypted = $2, encryption_key_id = $3, nonce = $4, version = version + 1,
		    expires_at = $5, backend = $6, reference = $7, reference_version = $8, updated_at = $9
		WHERE id = $1 RETURNING `+secretColumns,
		sec.ID, sec.ConfigurationEncrypted, sec.EncryptionKeyID, sec.Nonce, nullTime(sec.ExpiresAt),
		nullString(sec.Backend), nullString(sec.Reference), nullString(sec.ReferenceVersion), sec.UpdatedAt)
	return scanSecret(row)
}

func (s *Store) DeleteSecret(ctx context.Context, id string) error {
	result, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM secrets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListSecretsByTeams is secure (storage.PolicySecure): an empty teams[]
// returns zero rows, never the full table — secrets must never leak across
// a caller with no team scope at all.
func (s *Store) ListSecretsByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]secret.Secret, error) {
	if len(teams) == 0 {
		return nil, nil
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT `+secretColumns+` FROM secrets WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
	`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []secret.Secret
	for rows.Next() {
		sec, err := scanSecret(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}
