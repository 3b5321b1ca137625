package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

// --- RouteConfigStore -----------------------------------------------------

const routeConfigColumns = `id, name, path_prefix, cluster_name, configuration, version, source, team, import_id, route_order, headers, created_at, updated_at`

func (s *Store) CreateRouteConfig(ctx context.Context, rc xds.RouteConfig) (xds.RouteConfig, error) {
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rc.CreatedAt, rc.UpdatedAt = now, now
	if rc.Version == 0 {
		rc.Version = 1
	}

	configJSON, err := marshalJSON(rc.Configuration)
	if err != nil {
		return xds.RouteConfig{}, err
	}
	headersJSON, err := marshalJSON(rc.Headers)
	if err != nil {
		return xds.RouteConfig{}, err
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO route_configs (`+routeConfigColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rc.ID, rc.Name, rc.PathPrefix, rc.ClusterName, configJSON, rc.Version, rc.Source,
		nullString(rc.Team), nullString(rc.ImportID), nullInt(rc.RouteOrder), headersJSON, rc.CreatedAt, rc.UpdatedAt)
	if err != nil {
		return xds.RouteConfig{}, err
	}
	return rc, nil
}

func scanRouteConfig(row rowScanner) (xds.RouteConfig, error) {
	var (
		rc         xds.RouteConfig
		configRaw  []byte
		headersRaw []byte
		team       sql.NullString
		importID   sql.NullString
		routeOrder sql.NullInt64
	)
	if err := row.Scan(&rc.ID, &rc.Name, &rc.PathPrefix, &rc.ClusterName, &configRaw, &rc.Version, &rc.Source,
		&team, &importID, &routeOrder, &headersRaw, &rc.CreatedAt, &rc.UpdatedAt); err != nil {
		return xds.RouteConfig{}, err
	}
	rc.Configuration = unmarshalJSONMap(configRaw)
	rc.Headers = unmarshalJSONMap(headersRaw)
	rc.Team = stringPtr(team)
	rc.ImportID = stringPtr(importID)
	rc.RouteOrder = intPtr(routeOrder)
	return rc, nil
}

func (s *Store) GetRouteConfig(ctx context.Context, id string) (xds.RouteConfig, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+routeConfigColumns+` FROM route_configs WHERE id = $1`, id)
	return scanRouteConfig(row)
}

func (s *Store) GetRouteConfigByName(ctx context.Context, name string) (xds.RouteConfig, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+routeConfigColumns+` FROM route_configs WHERE name = $1`, name)
	return scanRouteConfig(row)
}

func (s *Store) UpdateRouteConfig(ctx context.Context, rc xds.RouteConfig) (xds.RouteConfig, error) {
	rc.UpdatedAt = time.Now().UTC()
	configJSON, err := marshalJSON(rc.Configuration)
	if err != nil {
		return xds.RouteConfig{}, err
	}
	headersJSON, err := marshalJSON(rc.Headers)
	if err != nil {
		return xds.RouteConfig{}, err
	}
	row := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE route_configs
		SET path_prefix = $2, cluster_name = $3, configuration = $4, version = version + 1, headers = $5, updated_at = $6
		WHERE id = $1 RETURNING `+routeConfigColumns, rc.ID, rc.PathPrefix, rc.ClusterName, configJSON, headersJSON, rc.UpdatedAt)
	return scanRouteConfig(row)
}

// DeleteRouteConfig cascades to VirtualHosts, RouteRules, and their filter
// attachments within a single transaction.
func (s *Store) DeleteRouteConfig(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.Querier(ctx)
		rows, err := q.QueryContext(ctx, `SELECT id FROM virtual_hosts WHERE route_config_id = $1`, id)
		if err != nil {
			return err
		}
		var vhostIDs []string
		for rows.Next() {
			var vid string
			if err := rows.Scan(&vid); err != nil {
				rows.Close()
				return err
			}
			vhostIDs = append(vhostIDs, vid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, vid := range vhostIDs {
			if err := s.DeleteVirtualHost(ctx, vid); err != nil {
				return err
			}
		}

		result, err := q.ExecContext(ctx, `DELETE FROM route_configs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// ListRouteConfigsByTeams is secure (storage.PolicySecure): an empty
// teams[] returns zero rows rather than every route config.
func (s *Store) ListRouteConfigsByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]xds.RouteConfig, error) {
	if len(teams) == 0 {
		return nil, nil
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT `+routeConfigColumns+` FROM route_configs WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
	`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRouteConfigRows(rows)
}

func scanRouteConfigRows(rows *sql.Rows) ([]xds.RouteConfig, error) {
	var out []xds.RouteConfig
	for rows.Next() {
		rc, err := scanRouteConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// --- VirtualHostStore -------------------------------------------------------

func (s *Store) CreateVirtualHost(ctx context.Context, vh xds.VirtualHost) (xds.VirtualHost, error) {
	if vh.ID == "" {
		vh.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	vh.CreatedAt, vh.UpdatedAt = now, now

	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO virtual_hosts (id, route_config_id, name, domains, rule_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, vh.ID, vh.RouteConfigID, vh.Name, stringArray(vh.Domains), vh.RuleOrder, vh.CreatedAt, vh.UpdatedAt)
	if err != nil {
		return xds.VirtualHost{}, err
	}
	return vh, nil
}

func scanVirtualHost(row rowScanner) (xds.VirtualHost, error) {
	var vh xds.VirtualHost
	var domains []string
	if err := row.Scan(&vh.ID, &vh.RouteConfigID, &vh.Name, stringArrayScan(&domains), &vh.RuleOrder, &vh.CreatedAt, &vh.UpdatedAt); err != nil {
		return xds.VirtualHost{}, err
	}
	vh.Domains = domains
	return vh, nil
}

const virtualHostColumns = `id, route_config_id, name, domains, rule_order, created_at, updated_at`

func (s *Store) GetVirtualHost(ctx context.Context, id string) (xds.VirtualHost, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+virtualHostColumns+` FROM virtual_hosts WHERE id = $1`, id)
	return scanVirtualHost(row)
}

func (s *Store) UpdateVirtualHost(ctx context.Context, vh xds.VirtualHost) (xds.VirtualHost, error) {
	vh.UpdatedAt = time.Now().UTC()
	result, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE virtual_hosts SET name = $2, domains = $3, rule_order = $4, updated_at = $5 WHERE id = $1
	`, vh.ID, vh.Name, stringArray(vh.Domains), vh.RuleOrder, vh.UpdatedAt)
	if err != nil {
		return xds.VirtualHost{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return xds.VirtualHost{}, sql.ErrNoRows
	}
	return vh, nil
}

// DeleteVirtualHost removes the virtual host's route rules and their filter
// attachments first, then the virtual-host-scoped filter attachments, then
// the row itself.
func (s *Store) DeleteVirtualHost(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		rules, err := s.ListRouteRulesByVirtualHost(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if err := s.DeleteRouteRule(ctx, r.ID); err != nil {
				return err
			}
		}
		if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM virtual_host_filters WHERE virtual_host_id = $1`, id); err != nil {
			return err
		}
		_, err = s.Querier(ctx).ExecContext(ctx, `DELETE FROM virtual_hosts WHERE id = $1`, id)
		return err
	})
}

func (s *Store) ListVirtualHostsByRouteConfig(ctx context.Context, routeConfigID string) ([]xds.VirtualHost, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT `+virtualHostColumns+` FROM virtual_hosts WHERE route_config_id = $1 ORDER BY rule_order
	`, routeConfigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xds.VirtualHost
	for rows.Next() {
		vh, err := scanVirtualHost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, vh)
	}
	return out, rows.Err()
}

// --- RouteRuleStore ----------------------------------------------------------

func (s *Store) CreateRouteRule(ctx context.Context, r xds.RouteRule) (xds.RouteRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	headersJSON, err := marshalJSON(r.Headers)
	if err != nil {
		return xds.RouteRule{}, err
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO route_rules (id, virtual_host_id, match_type, match_value, case_sensitive, headers, cluster_name, rule_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.VirtualHostID, r.MatchType, r.MatchValue, r.CaseSensitive, headersJSON, r.ClusterName, r.RuleOrder, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return xds.RouteRule{}, err
	}
	return r, nil
}

func (s *Store) ListRouteRulesByVirtualHost(ctx context.Context, virtualHostID string) ([]xds.RouteRule, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, virtual_host_id, match_type, match_value, case_sensitive, headers, cluster_name, rule_order, created_at, updated_at
		FROM route_rules WHERE virtual_host_id = $1 ORDER BY rule_order
	`, virtualHostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xds.RouteRule
	for rows.Next() {
		var (
			r          xds.RouteRule
			headersRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.VirtualHostID, &r.MatchType, &r.MatchValue, &r.CaseSensitive, &headersRaw, &r.ClusterName, &r.RuleOrder, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Headers = unmarshalJSONMap(headersRaw)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRouteRule(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM route_filters WHERE route_rule_id = $1`, id); err != nil {
			return err
		}
		_, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM route_rules WHERE id = $1`, id)
		return err
	})
}
