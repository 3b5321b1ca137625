package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

const apiDefinitionColumns = `id, team, domain, listener_isolation, target_listeners, tls_config, metadata, bootstrap_uri, bootstrap_revision, generated_listener_id, version, created_at, updated_at`

func (s *Store) CreateApiDefinition(ctx context.Context, d platformapi.ApiDefinition) (platformapi.ApiDefinition, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Version == 0 {
		d.Version = 1
	}

	tlsConfigJSON, err := marshalJSON(d.TLSConfig)
	if err != nil {
		return platformapi.ApiDefinition{}, err
	}
	metadataJSON, err := marshalJSON(d.Metadata)
	if err != nil {
		return platformapi.ApiDefinition{}, err
	}
	targetListeners, err := marshalStrings(d.TargetListeners)
	if err != nil {
		return platformapi.ApiDefinition{}, err
	}

	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO api_definitions (`+apiDefinitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, d.ID, d.Team, d.Domain, d.ListenerIsolation, targetListeners, tlsConfigJSON, metadataJSON,
		nullString(d.BootstrapURI), d.BootstrapRevision, nullString(d.GeneratedListenerID), d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return platformapi.ApiDefinition{}, err
	}
	return d, nil
}

func scanApiDefinition(row rowScanner) (platformapi.ApiDefinition, error) {
	var (
		d                   platformapi.ApiDefinition
		targetListenersRaw  []byte
		tlsConfigRaw        []byte
		metadataRaw         []byte
		bootstrapURI        sql.NullString
		generatedListenerID sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Team, &d.Domain, &d.ListenerIsolation, &targetListenersRaw, &tlsConfigRaw, &metadataRaw,
		&bootstrapURI, &d.BootstrapRevision, &generatedListenerID, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return platformapi.ApiDefinition{}, err
	}
	_ = json.Unmarshal(targetListenersRaw, &d.TargetListeners)
	d.TLSConfig = unmarshalJSONMap(tlsConfigRaw)
	d.Metadata = unmarshalJSONMap(metadataRaw)
	d.BootstrapURI = stringPtr(bootstrapURI)
	d.GeneratedListenerID = stringPtr(generatedListenerID)
	return d, nil
}

func (s *Store) GetApiDefinition(ctx context.Context, id string) (platformapi.ApiDefinition, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+apiDefinitionColumns+` FROM api_definitions WHERE id = $1`, id)
	return scanApiDefinition(row)
}

func (s *Store) GetApiDefinitionByDomain(ctx context.Context, team, domain string) (platformapi.ApiDefinition, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+apiDefinitionColumns+` FROM api_definitions WHERE team = $1 AND domain = $2`, team, domain)
	return scanApiDefinition(row)
}

// UpdateApiDefinition persists BootstrapRevision exactly as passed in — the
// compiler bumps it explicitly on every recompile — and otherwise leaves
// it untouched.
func (s *Store) UpdateApiDefinition(ctx context.Context, d platformapi.ApiDefinition) (platformapi.ApiDefinition, error) {
	d.UpdatedAt = time.Now().UTC()
	tlsConfigJSON, err := marshalJSON(d.TLSConfig)
	if err != nil {
		return platformapi.ApiDefinition{}, err
	}
	metadataJSON, err := marshalJSON(d.Metadata)
	if err != nil {
		return platformapi.ApiDefinition{}, err
	}
	targetListeners, err := marshalStrings(d.TargetListeners)
	if err != nil {
		return platformapi.ApiDefinition{}, err
	}
	row := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE api_definitions
		SET listener_isolation = $2, target_listeners = $3, tls_config = $4, metadata = $5,
		    bootstrap_uri = $6, bootstrap_revision = $7, generated_listener_id = $8, version = version + 1, updated_at = $9
		WHERE id = $1 RETURNING `+apiDefinitionColumns,
		d.ID, d.ListenerIsolation, targetListeners, tlsConfigJSON, metadataJSON,
		nullString(d.BootstrapURI), d.BootstrapRevision, nullString(d.GeneratedListenerID), d.UpdatedAt)
	return scanApiDefinition(row)
}

// ListApiDefinitionsByTeams is secure: empty teams[] returns zero rows.
func (s *Store) ListApiDefinitionsByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]platformapi.ApiDefinition, error) {
	if len(teams) == 0 {
		return nil, nil
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT `+apiDefinitionColumns+` FROM api_definitions WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
	`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []platformapi.ApiDefinition
	for rows.Next() {
		d, err := scanApiDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- ApiRoute --------------------------------------------------------------

func (s *Store) CreateApiRoute(ctx context.Context, r platformapi.ApiRoute) (platformapi.ApiRoute, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	headersJSON, err := marshalJSON(r.Headers)
	if err != nil {
		return platformapi.ApiRoute{}, err
	}
	upstreamJSON, err := json.Marshal(r.UpstreamTargets)
	if err != nil {
		return platformapi.ApiRoute{}, err
	}
	overrideJSON, err := marshalJSON(r.OverrideConfig)
	if err != nil {
		return platformapi.ApiRoute{}, err
	}
	filterConfigJSON, err := marshalJSON(r.FilterConfig)
	if err != nil {
		return platformapi.ApiRoute{}, err
	}

	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO api_routes (id, api_definition_id, match_type, match_value, case_sensitive, headers,
			rewrite_prefix, rewrite_regex, rewrite_substitution, upstream_targets, timeout_seconds, override_config,
			deployment_note, route_order, generated_route_id, generated_cluster_id, filter_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, r.ID, r.ApiDefinitionID, r.MatchType, r.MatchValue, r.CaseSensitive, headersJSON,
		nullString(r.RewritePrefix), nullString(r.RewriteRegex), nullString(r.RewriteSubstitution), upstreamJSON,
		nullInt(r.TimeoutSeconds), overrideJSON, nullString(r.DeploymentNote), r.RouteOrder,
		nullString(r.GeneratedRouteID), nullString(r.GeneratedClusterID), filterConfigJSON, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return platformapi.ApiRoute{}, err
	}
	return r, nil
}

func (s *Store) ListApiRoutesByDefinition(ctx context.Context, definitionID string) ([]platformapi.ApiRoute, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, api_definition_id, match_type, match_value, case_sensitive, headers,
			rewrite_prefix, rewrite_regex, rewrite_substitution, upstream_targets, timeout_seconds, override_config,
			deployment_note, route_order, generated_route_id, generated_cluster_id, filter_config, created_at, updated_at
		FROM api_routes WHERE api_definition_id = $1 ORDER BY route_order
	`, definitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []platformapi.ApiRoute
	for rows.Next() {
		var (
			r                   platformapi.ApiRoute
			headersRaw          []byte
			upstreamRaw         []byte
			overrideRaw         []byte
			filterConfigRaw     []byte
			rewritePrefix       sql.NullString
			rewriteRegex        sql.NullString
			rewriteSubstitution sql.NullString
			timeoutSeconds      sql.NullInt64
			deploymentNote      sql.NullString
			generatedRouteID    sql.NullString
			generatedClusterID  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ApiDefinitionID, &r.MatchType, &r.MatchValue, &r.CaseSensitive, &headersRaw,
			&rewritePrefix, &rewriteRegex, &rewriteSubstitution, &upstreamRaw, &timeoutSeconds, &overrideRaw,
			&deploymentNote, &r.RouteOrder, &generatedRouteID, &generatedClusterID, &filterConfigRaw, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Headers = unmarshalJSONMap(headersRaw)
		_ = json.Unmarshal(upstreamRaw, &r.UpstreamTargets)
		r.OverrideConfig = unmarshalJSONMap(overrideRaw)
		r.FilterConfig = unmarshalJSONMap(filterConfigRaw)
		r.RewritePrefix = stringPtr(rewritePrefix)
		r.RewriteRegex = stringPtr(rewriteRegex)
		r.RewriteSubstitution = stringPtr(rewriteSubstitution)
		r.TimeoutSeconds = intPtr(timeoutSeconds)
		r.DeploymentNote = stringPtr(deploymentNote)
		r.GeneratedRouteID = stringPtr(generatedRouteID)
		r.GeneratedClusterID = stringPtr(generatedClusterID)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteApiRoute(ctx context.Context, id string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM api_routes WHERE id = $1`, id)
	return err
}

// --- ImportMetadata ----------------------------------------------------

func (s *Store) CreateImportMetadata(ctx context.Context, m platformapi.ImportMetadata) (platformapi.ImportMetadata, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO import_metadata (id, spec_name, team, spec_version, spec_checksum, source_content, listener_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.SpecName, m.Team, nullString(m.SpecVersion), nullString(m.SpecChecksum), nullString(m.SourceContent),
		nullString(m.ListenerName), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return platformapi.ImportMetadata{}, err
	}
	return m, nil
}

func (s *Store) GetImportMetadataByName(ctx context.Context, team, specName string) (platformapi.ImportMetadata, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, spec_name, team, spec_version, spec_checksum, source_content, listener_name, created_at, updated_at
		FROM import_metadata WHERE team = $1 AND spec_name = $2
	`, team, specName)

	var (
		m             platformapi.ImportMetadata
		specVersion   sql.NullString
		specChecksum  sql.NullString
		sourceContent sql.NullString
		listenerName  sql.NullString
	)
	if err := row.Scan(&m.ID, &m.SpecName, &m.Team, &specVersion, &specChecksum, &sourceContent, &listenerName, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return platformapi.ImportMetadata{}, err
	}
	m.SpecVersion = stringPtr(specVersion)
	m.SpecChecksum = stringPtr(specChecksum)
	m.SourceContent = stringPtr(sourceContent)
	m.ListenerName = stringPtr(listenerName)
	return m, nil
}

func (s *Store) DeleteImportMetadata(ctx context.Context, id string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM import_metadata WHERE id = $1`, id)
	return err
}

// --- ClusterReference --------------------------------------------------

func (s *Store) UpsertClusterReference(ctx context.Context, ref platformapi.ClusterReference) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO cluster_references (cluster_id, import_id, route_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (cluster_id, import_id) DO UPDATE SET route_count = cluster_references.route_count + 1
	`, ref.ClusterID, ref.ImportID)
	return err
}

// RemoveClusterReference decrements the reference's RouteCount and deletes
// the row once it hits zero, returning the cluster's remaining total
// reference count across all imports so the caller can decide whether to
// also delete the underlying cluster.
func (s *Store) RemoveClusterReference(ctx context.Context, clusterID, importID string) (int, error) {
	var remaining int
	err := s.WithTx(ctx, func(ctx context.Context) error {
		q := s.Querier(ctx)
		var count int
		err := q.QueryRowContext(ctx, `
			SELECT route_count FROM cluster_references WHERE cluster_id = $1 AND import_id = $2 FOR UPDATE
		`, clusterID, importID).Scan(&count)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		if count <= 1 {
			if _, err := q.ExecContext(ctx, `DELETE FROM cluster_references WHERE cluster_id = $1 AND import_id = $2`, clusterID, importID); err != nil {
				return err
			}
		} else {
			if _, err := q.ExecContext(ctx, `UPDATE cluster_references SET route_count = route_count - 1 WHERE cluster_id = $1 AND import_id = $2`, clusterID, importID); err != nil {
				return err
			}
		}

		return q.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(route_count), 0) FROM cluster_references WHERE cluster_id = $1
		`, clusterID).Scan(&remaining)
	})
	return remaining, err
}

// FindClusterByUpstreamHash resolves the dedup key that lets two imports
// with identical upstream targets reuse the existing cluster instead of
// creating a duplicate: the hash is computed by the compiler over the
// sorted (host, port, weight) tuples and stored in the cluster's
// configuration.
func (s *Store) FindClusterByUpstreamHash(ctx context.Context, hash string) (xds.Cluster, bool, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+clusterColumns+` FROM clusters WHERE configuration->>'upstream_hash' = $1
	`, hash)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return xds.Cluster{}, false, nil
	}
	if err != nil {
		return xds.Cluster{}, false, err
	}
	return c, true, nil
}
