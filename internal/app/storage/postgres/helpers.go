// Package postgres implements the repository contracts against PostgreSQL
// via database/sql + lib/pq: parameterized SQL, uuid.NewString IDs,
// time.Now().UTC() timestamps, json.Marshal/Unmarshal metadata columns, and
// a RowsAffected()==0 -> sql.ErrNoRows convention on updates/deletes.
package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// stringArray adapts a Go string slice to a Postgres text[] bind parameter
// via lib/pq, used by every ListByTeams(teams []string, ...) query.
func stringArray(v []string) interface{} {
	return pq.Array(v)
}

// stringArrayScan adapts a *[]string destination to scan a Postgres text[]
// column via lib/pq.
func stringArrayScan(dest *[]string) interface{} {
	return pq.Array(dest)
}

// marshalJSON is a convenience wrapper that treats a nil map as an empty
// JSON object rather than the JSON literal null, so columns declared NOT
// NULL never receive one.
func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte("{}"), nil
	}
	return b, nil
}

func unmarshalJSONMap(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// marshalStrings JSON-encodes a string slice, normalizing nil to "[]".
func marshalStrings(v []string) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

func jsonUnmarshalStrings(raw []byte, dest *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// teamFilterClause builds the "AND team = ANY($n)" fragment for
// ListByTeams. Callers that implement PolicyAdminInclusive skip calling
// this when teams is empty (meaning "all teams"); callers that implement
// PolicySecure short-circuit to an empty result instead of calling the
// query at all.
const teamFilterAll = "" // sentinel: admin-inclusive empty-teams case
