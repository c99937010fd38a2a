// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to
// distinguish between different failure scenarios without parsing
// driver messages.  Every conditional write in this package folds its
// ownership or state predicate into the statement itself; when such a
// write matches no row the repository returns one of these sentinels
// and leaves classification (not found vs. forbidden vs. stale) to the
// caller, which already holds the pre-read record.
package repository

import (
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when a tenancy-scoped insert or update matched
// no row because the caller lacks the required ownership or approval.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a compare-and-set lost against a
// concurrent writer or the guarded state no longer holds.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned on unique-key violations (MySQL error 1062).
var ErrDuplicate = errors.New("duplicate")

// ErrSourceRejected is returned when a tipper lead names a source that
// is not an approved partner membership.
var ErrSourceRejected = errors.New("lead source is not an approved membership")

// notFound maps sql.ErrNoRows to ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, what)
}

// isDuplicate reports whether err is a MySQL duplicate-key error.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// affected returns none when a write touched no row, otherwise nil.
func affected(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return none
	}
	return nil
}

// rollback is deferred by every transactional method.  It is a no-op
// once the transaction has been committed.
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
