// Package dbx holds the small pieces of database/sql plumbing shared by the
// Postgres repositories: the query interface satisfied by both *sql.DB and
// *sql.Tx, transaction-scoped advisory locks, and lib/pq error classification.
package dbx

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Querier is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Postgres SQLSTATE codes used for classification.
const (
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeCheckViolation       = "23514"
)

// AdvisoryXactLock takes a transaction-scoped advisory lock on key. The lock
// is released automatically at commit or rollback. q must be a transaction.
func AdvisoryXactLock(ctx context.Context, q Querier, key string) error {
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

// Code returns the SQLSTATE of a Postgres error, or "" for other errors.
func Code(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsRetryable reports whether the whole transaction may be re-run.
func IsRetryable(err error) bool {
	switch Code(err) {
	case CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}
	return false
}

// IsConflict reports whether err is a constraint violation caused by
// concurrent or duplicate writes.
func IsConflict(err error) bool {
	switch Code(err) {
	case CodeUniqueViolation, CodeForeignKeyViolation:
		return true
	}
	return false
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	return Code(err) == CodeCheckViolation
}
