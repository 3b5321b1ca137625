package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/mcptool"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/google/uuid"
)

const mcpToolColumns = `id, team, name, description, category, source_type, input_schema, output_schema, route_id, http_method, http_path, cluster_name, listener_port, host_header, enabled, confidence, created_at, updated_at`

func (s *Store) CreateTool(ctx context.Context, t mcptool.Tool) (mcptool.Tool, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	inputSchemaJSON, err := marshalJSON(t.InputSchema)
	if err != nil {
		return mcptool.Tool{}, err
	}
	outputSchemaJSON, err := marshalJSON(t.OutputSchema)
	if err != nil {
		return mcptool.Tool{}, err
	}

	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO mcp_tools (`+mcpToolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, t.ID, t.Team, t.Name, t.Description, t.Category, t.SourceType, inputSchemaJSON, outputSchemaJSON,
		nullString(t.RouteID), nullString(t.HTTPMethod), nullString(t.HTTPPath), nullString(t.ClusterName),
		nullInt(t.ListenerPort), nullString(t.HostHeader), t.Enabled, nullFloat(t.Confidence), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mcptool.Tool{}, err
	}
	return t, nil
}

func scanTool(row rowScanner) (mcptool.Tool, error) {
	var (
		t                mcptool.Tool
		inputSchemaRaw   []byte
		outputSchemaRaw  []byte
		routeID          sql.NullString
		httpMethod       sql.NullString
		httpPath         sql.NullString
		clusterName      sql.NullString
		listenerPort     sql.NullInt64
		hostHeader       sql.NullString
		confidence       sql.NullFloat64
	)
	if err := row.Scan(&t.ID, &t.Team, &t.Name, &t.Description, &t.Category, &t.SourceType, &inputSchemaRaw, &outputSchemaRaw,
		&routeID, &httpMethod, &httpPath, &clusterName, &listenerPort, &hostHeader, &t.Enabled, &confidence, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return mcptool.Tool{}, err
	}
	t.InputSchema = unmarshalJSONMap(inputSchemaRaw)
	t.OutputSchema = unmarshalJSONMap(outputSchemaRaw)
	t.RouteID = stringPtr(routeID)
	t.HTTPMethod = stringPtr(httpMethod)
	t.HTTPPath = stringPtr(httpPath)
	t.ClusterName = stringPtr(clusterName)
	t.ListenerPort = intPtr(listenerPort)
	t.HostHeader = stringPtr(hostHeader)
	t.Confidence = floatPtr(confidence)
	return t, nil
}

func (s *Store) GetTool(ctx context.Context, id string) (mcptool.Tool, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `SELECT `+mcpToolColumns+` FROM mcp_tools WHERE id = $1`, id)
	return scanTool(row)
}

func (s *Store) UpdateTool(ctx context.Context, t mcptool.Tool) (mcptool.Tool, error) {
	t.UpdatedAt = time.Now().UTC()
	inputSchemaJSON, err := marshalJSON(t.InputSchema)
	if err != nil {
		return mcptool.Tool{}, err
	}
	outputSchemaJSON, err := marshalJSON(t.OutputSchema)
	if err != nil {
		return mcptool.Tool{}, err
	}
	row := s.Querier(ctx).QueryRowContext(ctx, `
		UPDATE mcp_tools
		SET description = $2, input_schema = $3, output_schema = $4, route_id = $5, http_method = $6, http_path = $7,
		    cluster_name = $8, listener_port = $9, host_header = $10, enabled = $11, confidence = $12, updated_at = $13
		WHERE id = $1 RETURNING `+mcpToolColumns,
		t.ID, t.Description, inputSchemaJSON, outputSchemaJSON, nullString(t.RouteID), nullString(t.HTTPMethod),
		nullString(t.HTTPPath), nullString(t.ClusterName), nullInt(t.ListenerPort), nullString(t.HostHeader),
		t.Enabled, nullFloat(t.Confidence), t.UpdatedAt)
	return scanTool(row)
}

func (s *Store) DeleteTool(ctx context.Context, id string) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM mcp_tools WHERE id = $1`, id)
	return err
}

// ListToolsByTeams is secure: empty teams[] returns zero rows.
func (s *Store) ListToolsByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]mcptool.Tool, error) {
	if len(teams) == 0 {
		return nil, nil
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT `+mcpToolColumns+` FROM mcp_tools WHERE team = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3
	`, stringArray(teams), storage.ClampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mcptool.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
