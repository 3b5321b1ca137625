package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

// --- ClusterStore ----------------------------------------------------------

func (s *Store) CreateCluster(ctx context.Context, c xds.Cluster) (xds.Cluster, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Version == 0 {
		c.Version = 1
	}

	configJSON, err := marshalJSON(c.Configuration)
	if err != nil {
		return xds.Cluster{}, err
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO clusters (id, name, service_name, configuration, version, source, team, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Name, c.ServiceName, configJSON, c.Version, c.Source, nullString(c.Team), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return xds.Cluster{}, err
	}
	return c, nil
}

func scanCluster(row rowScanner) (xds.Cluster, error) {
	var (
		c         xds.Cluster
		configRaw []byte
		team      sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.ServiceName, &configRaw, &c.Version, &c.Source, &team, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return xds.Cluster{}, err
	}
	c.Configuration = unmarshalJSONMap(configRaw)
	c.Team = stringPtr(team)
	return c, nil
}

const clusterColumns = `id, name, service_name, configuration, version, source, team, created_at, updated_at`

func (s *Store) GetCluster(ctx context.Context, id string) (xds.Cluster, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id)
	return scanCluster(row)
}

func (s *Store) GetClusterByName(ctx context.Context, name string) (xds.Cluster, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE name = $1`, name)
	return scanCluster(row)
}

func (s *Store) UpdateCluster(ctx context.Context, c xds.Cluster) (xds.Cluster, error) {
	c.UpdatedAt = time.Now().UTC()
	configJSON, err := marshalJSON(c.Configuration)
	if err != nil {
		return xds.Cluster{}, err
	}
	row := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE clusters SET service_name = $2, configuration = $3, version = version + 1, updated_at = $4
		WHERE id = $1 RETURNING `+clusterColumns, c.ID, c.ServiceName, configJSON, c.UpdatedAt)
	return scanCluster(row)
}

func (s *Store) DeleteCluster(ctx context.Context, id string) error {
	result, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM clusters WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListClusters(ctx context.Context, p storage.Pagination) ([]xds.Cluster, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT `+clusterColumns+` FROM clusters ORDER BY created_at LIMIT $1 OFFSET $2
	`, storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClusterRows(rows)
}

// ListClustersByTeams is admin-inclusive (storage.PolicyAdminInclusive): an
// empty teams[] returns every cluster, matching the "admin:all" /
// "<resource>:all" bypass decision from the scope-to-team-filter resolver.
func (s *Store) ListClustersByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]xds.Cluster, error) {
	var rows *sql.Rows
	var err error
	if len(teams) == 0 {
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT `+clusterColumns+` FROM clusters ORDER BY created_at LIMIT $1 OFFSET $2
		`, storage.ClampLimit(p.Limit), p.Offset)
	} else {
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT `+clusterColumns+` FROM clusters WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
		`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClusterRows(rows)
}

func scanClusterRows(rows *sql.Rows) ([]xds.Cluster, error) {
	var out []xds.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountClusterReferences reports how many route rules / platform API
// routes still point at this cluster by name, used to block deletes that
// would dangle a reference.
func (s *Store) CountClusterReferences(ctx context.Context, clusterID string) (int, error) {
	var n int
	err := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM route_rules rr JOIN clusters c ON c.name = rr.cluster_name WHERE c.id = $1) +
			(SELECT count(*) FROM cluster_references WHERE cluster_id = $1)
	`, clusterID).Scan(&n)
	return n, err
}

// --- ClusterEndpoint ------------------------------------------------------

func (s *Store) ListEndpoints(ctx context.Context, clusterID string) ([]xds.ClusterEndpoint, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, cluster_id, address, port, weight, priority, health_status, metadata, created_at, updated_at
		FROM cluster_endpoints WHERE cluster_id = $1 ORDER BY address, port
	`, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xds.ClusterEndpoint
	for rows.Next() {
		var (
			e           xds.ClusterEndpoint
			metadataRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.ClusterID, &e.Address, &e.Port, &e.Weight, &e.Priority, &e.HealthStatus, &metadataRaw, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Metadata = unmarshalJSONMap(metadataRaw)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateEndpoint(ctx context.Context, e xds.ClusterEndpoint) (xds.ClusterEndpoint, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.HealthStatus == "" {
		e.HealthStatus = xds.HealthUnknown
	}

	metadataJSON, err := marshalJSON(e.Metadata)
	if err != nil {
		return xds.ClusterEndpoint{}, err
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO cluster_endpoints (id, cluster_id, address, port, weight, priority, health_status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.ClusterID, e.Address, e.Port, e.Weight, e.Priority, e.HealthStatus, metadataJSON, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return xds.ClusterEndpoint{}, err
	}
	return e, nil
}

func (s *Store) UpdateEndpoint(ctx context.Context, e xds.ClusterEndpoint) (xds.ClusterEndpoint, error) {
	e.UpdatedAt = time.Now().UTC()
	metadataJSON, err := marshalJSON(e.Metadata)
	if err != nil {
		return xds.ClusterEndpoint{}, err
	}
	result, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE cluster_endpoints
		SET address = $2, port = $3, weight = $4, priority = $5, health_status = $6, metadata = $7, updated_at = $8
		WHERE id = $1
	`, e.ID, e.Address, e.Port, e.Weight, e.Priority, e.HealthStatus, metadataJSON, e.UpdatedAt)
	if err != nil {
		return xds.ClusterEndpoint{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return xds.ClusterEndpoint{}, sql.ErrNoRows
	}
	return e, nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM cluster_endpoints WHERE id = $1`, id)
	return err
}
