package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/wasm"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

const wasmFilterColumns = `id, team, name, display_name, description, wasm_binary, wasm_sha256, wasm_size_bytes, config_schema, per_route_config_schema, ui_hints, attachment_points, runtime, failure_policy, version, created_by, created_at, updated_at`

func attachmentPointsToStrings(points []wasm.AttachmentPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = string(p)
	}
	return out
}

func stringsToAttachmentPoints(strs []string) []wasm.AttachmentPoint {
	out := make([]wasm.AttachmentPoint, len(strs))
	for i, v := range strs {
		out[i] = wasm.AttachmentPoint(v)
	}
	return out
}

func (s *Store) CreateWasmFilter(ctx context.Context, f wasm.CustomWasmFilter) (wasm.CustomWasmFilter, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	if f.Version == 0 {
		f.Version = 1
	}

	configSchemaJSON, err := marshalJSON(f.ConfigSchema)
	if err != nil {
		return wasm.CustomWasmFilter{}, err
	}
	perRouteSchemaJSON, err := marshalJSON(f.PerRouteConfigSchema)
	if err != nil {
		return wasm.CustomWasmFilter{}, err
	}
	uiHintsJSON, err := marshalJSON(f.UIHints)
	if err != nil {
		return wasm.CustomWasmFilter{}, err
	}

	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO custom_wasm_filters (`+wasmFilterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, f.ID, f.Team, f.Name, f.DisplayName, f.Description, f.WasmBinary, f.WasmSHA256, f.WasmSizeBytes,
		configSchemaJSON, perRouteSchemaJSON, uiHintsJSON, stringArray(attachmentPointsToStrings(f.AttachmentPoints)),
		f.Runtime, f.FailurePolicy, f.Version, f.CreatedBy, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return wasm.CustomWasmFilter{}, err
	}
	return f, nil
}

func scanWasmFilter(row rowScanner) (wasm.CustomWasmFilter, error) {
	var (
		f                  wasm.CustomWasmFilter
		configSchemaRaw    []byte
		perRouteSchemaRaw  []byte
		uiHintsRaw         []byte
		attachmentPointsRaw []string
	)
	if err := row.Scan(&f.ID, &f.Team, &f.Name, &f.DisplayName, &f.Description, &f.WasmBinary, &f.WasmSHA256, &f.WasmSizeBytes,
		&configSchemaRaw, &perRouteSchemaRaw, &uiHintsRaw, stringArrayScan(&attachmentPointsRaw),
		&f.Runtime, &f.FailurePolicy, &f.Version, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return wasm.CustomWasmFilter{}, err
	}
	f.ConfigSchema = unmarshalJSONMap(configSchemaRaw)
	f.PerRouteConfigSchema = unmarshalJSONMap(perRouteSchemaRaw)
	f.UIHints = unmarshalJSONMap(uiHintsRaw)
	f.AttachmentPoints = stringsToAttachmentPoints(attachmentPointsRaw)
	return f, nil
}

func (s *Store) GetWasmFilter(ctx context.Context, id string) (wasm.CustomWasmFilter, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+wasmFilterColumns+` FROM custom_wasm_filters WHERE id = $1`, id)
	return scanWasmFilter(row)
}

// GetWasmFilterBySHA256 backs the content-addressed dedup lookup: two
// uploads of the same bytecode resolve to the same row rather than
// duplicating WasmBinary storage.
func (s *Store) GetWasmFilterBySHA256(ctx context.Context, sha256Hex string) (wasm.CustomWasmFilter, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+wasmFilterColumns+` FROM custom_wasm_filters WHERE wasm_sha256 = $1`, sha256Hex)
	return scanWasmFilter(row)
}

func (s *Store) UpdateWasmFilter(ctx context.Context, f wasm.CustomWasmFilter) (wasm.CustomWasmFilter, error) {
	f.UpdatedAt = time.Now().UTC()
	configSchemaJSON, err := marshalJSON(f.ConfigSchema)
	if err != nil {
		return wasm.CustomWasmFilter{}, err
	}
	perRouteSchemaJSON, err := marshalJSON(f.PerRouteConfigSchema)
	if err != nil {
		return wasm.CustomWasmFilter{}, err
	}
	uiHintsJSON, err := marshalJSON(f.UIHints)
	if err != nil {
		return wasm.CustomWasmFilter{}, err
	}
	row := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE custom_wasm_filters
		SET display_name = $2, description = $3, config_schema = $4, per_route_config_schema = $5, ui_hints = $6,
		    attachment_points = $7, failure_policy = $8, version = version + 1, updated_at = $9
		WHERE id = $1 RETURNING `+wasmFilterColumns,
		f.ID, f.DisplayName, f.Description, configSchemaJSON, perRouteSchemaJSON, uiHintsJSON,
		stringArray(attachmentPointsToStrings(f.AttachmentPoints)), f.FailurePolicy, f.UpdatedAt)
	return scanWasmFilter(row)
}

func (s *Store) DeleteWasmFilter(ctx context.Context, id string) error {
	result, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM custom_wasm_filters WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListWasmFiltersByTeams is secure: empty teams[] returns zero rows.
func (s *Store) ListWasmFiltersByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]wasm.CustomWasmFilter, error) {
	if len(teams) == 0 {
		return nil, nil
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT `+wasmFilterColumns+` FROM custom_wasm_filters WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
	`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wasm.CustomWasmFilter
	for rows.Next() {
		f, err := scanWasmFilter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
