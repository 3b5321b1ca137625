package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/flowplane/controlplane/internal/app/domain/audit"
)

// RecordEvent writes an append-only audit row. Audit events are never
// updated or deleted by application code.
func (s *Store) RecordEvent(ctx context.Context, e audit.Event) (audit.Event, error) {
	e.CreatedAt = time.Now().UTC()

	oldConfigJSON, err := marshalJSON(e.OldConfiguration)
	if err != nil {
		return audit.Event{}, err
	}
	newConfigJSON, err := marshalJSON(e.NewConfiguration)
	if err != nil {
		return audit.Event{}, err
	}

	row := s.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO audit_events (resource_type, resource_id, resource_name, action, old_configuration, new_configuration, user_id, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, e.ResourceType, nullString(e.ResourceID), nullString(e.ResourceName), e.Action, oldConfigJSON, newConfigJSON,
		nullString(e.UserID), nullString(e.ClientIP), nullString(e.UserAgent), e.CreatedAt)
	if err := row.Scan(&e.ID); err != nil {
		return audit.Event{}, err
	}
	return e, nil
}

// ListEvents applies Filter's optional predicates and clamps Limit to the
// shared page-size cap (storage.MaxLimit).
func (s *Store) ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return placeholderFor(len(args))
	}

	if f.ResourceType != "" {
		conds = append(conds, "resource_type = "+arg(f.ResourceType))
	}
	if f.Action != "" {
		conds = append(conds, "action = "+arg(f.Action))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= "+arg(*f.Since))
	}
	if f.Until != nil {
		conds = append(conds, "created_at <= "+arg(*f.Until))
	}

	query := `SELECT id, resource_type, resource_id, resource_name, action, old_configuration, new_configuration, user_id, client_ip, user_agent, created_at FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(clampAuditLimit(f.Limit)) + " OFFSET " + arg(f.Offset)

	rows, err := s.Querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e                audit.Event
			resourceID       sql.NullString
			resourceName     sql.NullString
			oldConfigRaw     []byte
			newConfigRaw     []byte
			userID           sql.NullString
			clientIP         sql.NullString
			userAgent        sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ResourceType, &resourceID, &resourceName, &e.Action, &oldConfigRaw, &newConfigRaw,
			&userID, &clientIP, &userAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ResourceID = stringPtr(resourceID)
		e.ResourceName = stringPtr(resourceName)
		e.OldConfiguration = unmarshalJSONMap(oldConfigRaw)
		e.NewConfiguration = unmarshalJSONMap(newConfigRaw)
		e.UserID = stringPtr(userID)
		e.ClientIP = stringPtr(clientIP)
		e.UserAgent = stringPtr(userAgent)
		out = append(out, e)
	}
	return out, rows.Err()
}

func placeholderFor(n int) string {
	return "$" + strconv.Itoa(n)
}

func clampAuditLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
