package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrDataSource marks a failure to read from or write to a store. Callers
	// must not interpret it as "nothing there".
	ErrDataSource = errors.New("data source unavailable")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAssetAlreadyClaimed is returned when inserting a reservation would give
	// an asset a second active claim.
	ErrAssetAlreadyClaimed = errors.New("asset already has an active reservation")

	// ErrWrongKind is returned when an operation for one item kind is applied to
	// an item definition of the other kind.
	ErrWrongKind = errors.New("wrong item kind")

	// ErrDuplicate is returned when a unique constraint other than the
	// reservation claim is violated.
	ErrDuplicate = errors.New("already exists")
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation from
// either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}

// sourceErr wraps a driver error so that callers can tell it apart from an
// empty result.
func sourceErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDataSource, err)
}
