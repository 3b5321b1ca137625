package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// attachmentStore implements storage.AttachmentStore against one of the
// three parallel attachment tables (virtual_host_filters, route_filters,
// listener_filters). All three share an identical shape — (scope_id,
// filter_id, filter_order, settings) — so one implementation serves all
// three, parameterized by table name and scope column.
type attachmentStore struct {
	db       *storage.DBProvider
	table    string
	scopeCol string
}

func (a *attachmentStore) Attach(ctx context.Context, scopeID, filterID string, order int, settings map[string]interface{}) (xds.FilterAttachment, error) {
	settingsJSON, err := marshalJSON(settings)
	if err != nil {
		return xds.FilterAttachment{}, err
	}
	now := time.Now().UTC()

	query := `INSERT INTO ` + a.table + ` (` + a.scopeCol + `, filter_id, filter_order, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (` + a.scopeCol + `, filter_id) DO UPDATE SET filter_order = $3, settings = $4, updated_at = $5`
	if _, err := a.db.Querier(ctx).ExecContext(ctx, query, scopeID, filterID, order, settingsJSON, now); err != nil {
		return xds.FilterAttachment{}, err
	}

	return xds.FilterAttachment{
		ScopeID:     scopeID,
		FilterID:    filterID,
		FilterOrder: order,
		Settings:    settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (a *attachmentStore) Detach(ctx context.Context, scopeID, filterID string) error {
	query := `DELETE FROM ` + a.table + ` WHERE ` + a.scopeCol + ` = $1 AND filter_id = $2`
	_, err := a.db.Querier(ctx).ExecContext(ctx, query, scopeID, filterID)
	return err
}

func (a *attachmentStore) ListByScope(ctx context.Context, scopeID string) ([]xds.FilterAttachment, error) {
	query := `SELECT filter_id, filter_order, settings, created_at, updated_at FROM ` + a.table + `
		WHERE ` + a.scopeCol + ` = $1 ORDER BY filter_order`
	rows, err := a.db.Querier(ctx).QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xds.FilterAttachment
	for rows.Next() {
		var (
			att         xds.FilterAttachment
			settingsRaw []byte
		)
		if err := rows.Scan(&att.FilterID, &att.FilterOrder, &settingsRaw, &att.CreatedAt, &att.UpdatedAt); err != nil {
			return nil, err
		}
		att.ScopeID = scopeID
		att.Settings = unmarshalJSONMap(settingsRaw)
		out = append(out, att)
	}
	return out, rows.Err()
}

func (a *attachmentStore) Exists(ctx context.Context, scopeID, filterID string) (bool, error) {
	query := `SELECT 1 FROM ` + a.table + ` WHERE ` + a.scopeCol + ` = $1 AND filter_id = $2`
	var one int
	err := a.db.Querier(ctx).QueryRowContext(ctx, query, scopeID, filterID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *attachmentStore) GetNextOrder(ctx context.Context, scopeID string) (int, error) {
	query := `SELECT COALESCE(MAX(filter_order), -1) + 1 FROM ` + a.table + ` WHERE ` + a.scopeCol + ` = $1`
	var next int
	err := a.db.Querier(ctx).QueryRowContext(ctx, query, scopeID).Scan(&next)
	return next, err
}

func (a *attachmentStore) CountByFilter(ctx context.Context, filterID string) (int, error) {
	query := `SELECT count(*) FROM ` + a.table + ` WHERE filter_id = $1`
	var n int
	err := a.db.Querier(ctx).QueryRowContext(ctx, query, filterID).Scan(&n)
	return n, err
}
