package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

// --- ListenerStore -----------------------------------------------------

const listenerColumns = `id, name, address, port, team, dataplane_id, configuration, version, created_at, updated_at`

func (s *Store) CreateListener(ctx context.Context, l xds.Listener) (xds.Listener, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	if l.Version == 0 {
		l.Version = 1
	}

	configJSON, err := marshalJSON(l.Configuration)
	if err != nil {
		return xds.Listener{}, err
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO listeners (`+listenerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, l.ID, l.Name, l.Address, l.Port, nullString(l.Team), nullString(l.DataplaneID), configJSON, l.Version, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return xds.Listener{}, err
	}
	return l, nil
}

func scanListener(row rowScanner) (xds.Listener, error) {
	var (
		l           xds.Listener
		configRaw   []byte
		team        sql.NullString
		dataplaneID sql.NullString
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Address, &l.Port, &team, &dataplaneID, &configRaw, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return xds.Listener{}, err
	}
	l.Configuration = unmarshalJSONMap(configRaw)
	l.Team = stringPtr(team)
	l.DataplaneID = stringPtr(dataplaneID)
	return l, nil
}

func (s *Store) GetListener(ctx context.Context, id string) (xds.Listener, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+listenerColumns+` FROM listeners WHERE id = $1`, id)
	return scanListener(row)
}

func (s *Store) UpdateListener(ctx context.Context, l xds.Listener) (xds.Listener, error) {
	l.UpdatedAt = time.Now().UTC()
	configJSON, err := marshalJSON(l.Configuration)
	if err != nil {
		return xds.Listener{}, err
	}
	row := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE listeners SET address = $2, port = $3, configuration = $4, version = version + 1, updated_at = $5
		WHERE id = $1 RETURNING `+listenerColumns, l.ID, l.Address, l.Port, configJSON, l.UpdatedAt)
	return scanListener(row)
}

func (s *Store) DeleteListener(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM listener_filters WHERE listener_id = $1`, id); err != nil {
			return err
		}
		if _, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM listener_route_configs WHERE listener_id = $1`, id); err != nil {
			return err
		}
		result, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM listeners WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// ListListenersByTeams is admin-inclusive: empty teams[] returns every listener.
func (s *Store) ListListenersByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]xds.Listener, error) {
	var rows *sql.Rows
	var err error
	if len(teams) == 0 {
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT `+listenerColumns+` FROM listeners ORDER BY created_at LIMIT $1 OFFSET $2
		`, storage.ClampLimit(p.Limit), p.Offset)
	} else {
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT `+listenerColumns+` FROM listeners WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
		`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xds.Listener
	for rows.Next() {
		l, err := scanListener(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) AttachRouteConfig(ctx context.Context, listenerID, routeConfigID string, order int) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO listener_route_configs (listener_id, route_config_id, route_order)
		VALUES ($1, $2, $3)
		ON CONFLICT (listener_id, route_config_id) DO UPDATE SET route_order = $3
	`, listenerID, routeConfigID, order)
	return err
}

func (s *Store) DetachRouteConfig(ctx context.Context, listenerID, routeConfigID string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		DELETE FROM listener_route_configs WHERE listener_id = $1 AND route_config_id = $2
	`, listenerID, routeConfigID)
	return err
}

func (s *Store) ListRouteConfigsByListener(ctx context.Context, listenerID string) ([]xds.ListenerRouteConfig, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT listener_id, route_config_id, route_order FROM listener_route_configs
		WHERE listener_id = $1 ORDER BY route_order
	`, listenerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xds.ListenerRouteConfig
	for rows.Next() {
		var lrc xds.ListenerRouteConfig
		if err := rows.Scan(&lrc.ListenerID, &lrc.RouteConfigID, &lrc.RouteOrder); err != nil {
			return nil, err
		}
		out = append(out, lrc)
	}
	return out, rows.Err()
}

// --- FilterStore -----------------------------------------------------------

func (s *Store) CreateFilter(ctx context.Context, f xds.Filter) (xds.Filter, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	configJSON, err := marshalJSON(f.Config)
	if err != nil {
		return xds.Filter{}, err
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO filters (id, type, name, config, team, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.Type, f.Name, configJSON, nullString(f.Team), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return xds.Filter{}, err
	}
	return f, nil
}

func (s *Store) GetFilter(ctx context.Context, id string) (xds.Filter, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, type, name, config, team, created_at, updated_at FROM filters WHERE id = $1
	`, id)
	var (
		f         xds.Filter
		configRaw []byte
		team      sql.NullString
	)
	if err := row.Scan(&f.ID, &f.Type, &f.Name, &configRaw, &team, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return xds.Filter{}, err
	}
	f.Config = unmarshalJSONMap(configRaw)
	f.Team = stringPtr(team)
	return f, nil
}

func (s *Store) DeleteFilter(ctx context.Context, id string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM filters WHERE id = $1`, id)
	return err
}

// ListFiltersByTeams is admin-inclusive: empty teams[] returns every filter.
func (s *Store) ListFiltersByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]xds.Filter, error) {
	var rows *sql.Rows
	var err error
	if len(teams) == 0 {
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT id, type, name, config, team, created_at, updated_at FROM filters
			ORDER BY created_at LIMIT $1 OFFSET $2
		`, storage.ClampLimit(p.Limit), p.Offset)
	} else {
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT id, type, name, config, team, created_at, updated_at FROM filters
			WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
		`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xds.Filter
	for rows.Next() {
		var (
			f         xds.Filter
			configRaw []byte
			team      sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Type, &f.Name, &configRaw, &team, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Config = unmarshalJSONMap(configRaw)
		f.Team = stringPtr(team)
		out = append(out, f)
	}
	return out, rows.Err()
}
