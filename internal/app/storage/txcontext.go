// Package storage defines the repository contracts shared by every entity,
// plus the transaction-context plumbing repositories use to participate in
// a caller-managed transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
)

// ErrLastOwner is returned by UpdateMembershipRole when demoting the sole
// remaining owner of an organization would leave it ownerless.
var ErrLastOwner = errors.New("storage: cannot demote the last owner of an organization")

// Querier is satisfied by both *sql.DB and *sql.Tx, so repository methods
// can run either standalone or inside a caller-managed transaction without
// duplicating their SQL.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// ContextWithTx embeds tx into ctx so that repository calls made with ctx
// run inside the transaction instead of against the base pool.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext retrieves a transaction embedded by ContextWithTx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// DBProvider resolves the Querier to use for a given context: the embedded
// transaction if present, otherwise the base pool.
type DBProvider struct {
	DB *sql.DB
}

func (p *DBProvider) Querier(ctx context.Context) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return p.DB
}

// WithTx runs fn inside a new transaction, committing on success and
// rolling back on error or panic. Every multi-row state change must go
// through this so that no logical state change straddles a transaction
// boundary.
func (p *DBProvider) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Pagination bounds a list operation. Limit is always clamped to
// [1, MaxLimit] by ClampLimit before use.
type Pagination struct {
	Limit  int
	Offset int
}

// MaxLimit is the hard cap on list/audit-query page size.
const MaxLimit = 1000

func DefaultPagination() Pagination { return Pagination{Limit: 50, Offset: 0} }

// ClampLimit enforces "limit > 1000 is clamped silently" and a minimum of 1.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPagination().Limit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// TeamListPolicy documents which of the two ListByTeams conventions a
// repository implements.
type TeamListPolicy string

const (
	// PolicyAdminInclusive: empty teams[] returns all rows.
	PolicyAdminInclusive TeamListPolicy = "admin-inclusive"
	// PolicySecure: empty teams[] returns zero rows.
	PolicySecure TeamListPolicy = "secure"
)
